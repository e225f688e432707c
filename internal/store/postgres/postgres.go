package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Store = (*Store)(nil)

const userColumns = `id, email, password_hash, first_name, last_name, phone, role, failed_login_attempts, locked_until, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.Role,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, errs.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
		ORDER BY created_at
		LIMIT 1
	`, email))
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, failed_login_attempts, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Phone, user.Role, user.FailedLoginAttempts, user.LockedUntil, user.CreatedAt, user.UpdatedAt)
	return mapUniqueViolation(err)
}

func (s *Store) UpdateUser(ctx context.Context, id string, update store.UserUpdate) (model.User, error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Phone != nil {
		add("phone", update.Phone)
	}
	if update.Role != nil {
		add("role", *update.Role)
	}
	if update.PasswordHash != nil {
		add("password_hash", *update.PasswordHash)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE users SET %s
		WHERE id = $%d
		RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	user, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return model.User{}, mapUniqueViolation(err)
	}
	return user, nil
}

func (s *Store) UpdateLoginState(ctx context.Context, id string, state store.LoginState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users
		SET failed_login_attempts = $1, locked_until = $2
		WHERE id = $3
	`, state.FailedLoginAttempts, state.LockedUntil, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) UserHasTagRequests(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tag_requests
			WHERE new_docent_id = $1 OR seasoned_docent_id = $1
		)
	`, id).Scan(&exists)
	return exists, err
}

func (s *Store) CreatePasswordResetToken(ctx context.Context, token model.PasswordResetToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, token.ID, token.UserID, token.Token, token.ExpiresAt, token.Used, token.CreatedAt)
	return err
}

func (s *Store) GetUnusedResetToken(ctx context.Context, token string) (model.PasswordResetToken, error) {
	var record model.PasswordResetToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM password_reset_tokens
		WHERE token = $1 AND used = false
	`, token).Scan(&record.ID, &record.UserID, &record.Token, &record.ExpiresAt, &record.Used, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PasswordResetToken{}, errs.ErrNotFound
	}
	return record, err
}

func (s *Store) MarkResetTokenUsed(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE password_reset_tokens SET used = true WHERE id = $1`, id)
	return err
}

func (s *Store) InvalidateResetTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used = true
		WHERE user_id = $1 AND used = false
	`, userID)
	return err
}

const tagColumns = `id, new_docent_id, seasoned_docent_id, date, time_slot, status, notes, created_at, updated_at`

func scanTag(row pgx.Row) (model.TagRequest, error) {
	var tag model.TagRequest
	err := row.Scan(
		&tag.ID,
		&tag.NewDocentID,
		&tag.SeasonedDocentID,
		&tag.Date,
		&tag.TimeSlot,
		&tag.Status,
		&tag.Notes,
		&tag.CreatedAt,
		&tag.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TagRequest{}, errs.ErrNotFound
	}
	return tag, err
}

func (s *Store) CreateTagRequest(ctx context.Context, tag model.TagRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tag_requests (id, new_docent_id, seasoned_docent_id, date, time_slot, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tag.ID, tag.NewDocentID, tag.SeasonedDocentID, tag.Date, tag.TimeSlot, tag.Status, tag.Notes, tag.CreatedAt, tag.UpdatedAt)
	return mapUniqueViolation(err)
}

func (s *Store) GetTagRequest(ctx context.Context, id string) (model.TagRequest, error) {
	return scanTag(s.pool.QueryRow(ctx, `
		SELECT `+tagColumns+`
		FROM tag_requests
		WHERE id = $1
	`, id))
}

func (s *Store) UpdateTagRequest(ctx context.Context, id string, update store.TagUpdate) (model.TagRequest, error) {
	sets := make([]string, 0, 7)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.NewDocentID != nil {
		add("new_docent_id", *update.NewDocentID)
	}
	if update.ClearSeasonedDocent {
		sets = append(sets, "seasoned_docent_id = NULL")
	} else if update.SeasonedDocentID != nil {
		add("seasoned_docent_id", *update.SeasonedDocentID)
	}
	if update.Date != nil {
		add("date", *update.Date)
	}
	if update.TimeSlot != nil {
		add("time_slot", *update.TimeSlot)
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Notes != nil {
		add("notes", update.Notes)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`
		UPDATE tag_requests SET %s
		WHERE id = $%d
		RETURNING `+tagColumns, strings.Join(sets, ", "), len(args))
	tag, err := scanTag(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return model.TagRequest{}, mapUniqueViolation(err)
	}
	return tag, nil
}

func (s *Store) DeleteTagRequest(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tag_requests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) SlotTaken(ctx context.Context, newDocentID string, date time.Time, slot model.TimeSlot) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tag_requests
			WHERE new_docent_id = $1 AND date = $2 AND time_slot = $3
		)
	`, newDocentID, date, slot).Scan(&exists)
	return exists, err
}

func (s *Store) ListTagRequests(ctx context.Context, dateRange *model.DateRange) ([]model.TagRequest, error) {
	return s.listTags(ctx, ``, nil, dateRange)
}

func (s *Store) ListTagRequestsByNewDocent(ctx context.Context, newDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	return s.listTags(ctx, `new_docent_id = $%d`, []interface{}{newDocentID}, dateRange)
}

func (s *Store) ListTagRequestsBySeasonedDocent(ctx context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	return s.listTags(ctx, `seasoned_docent_id = $%d`, []interface{}{seasonedDocentID}, dateRange)
}

func (s *Store) ListOpenOrClaimedBy(ctx context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	return s.listTags(ctx, `(status = 'requested' OR seasoned_docent_id = $%d)`, []interface{}{seasonedDocentID}, dateRange)
}

func (s *Store) listTags(ctx context.Context, cond string, args []interface{}, dateRange *model.DateRange) ([]model.TagRequest, error) {
	where := make([]string, 0, 2)
	if cond != `` {
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if dateRange != nil {
		args = append(args, dateRange.Start)
		start := len(args)
		args = append(args, dateRange.End)
		where = append(where, fmt.Sprintf("date BETWEEN $%d AND $%d", start, len(args)))
	}
	query := `SELECT ` + tagColumns + ` FROM tag_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date, created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tags := make([]model.TagRequest, 0)
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// mapUniqueViolation translates 23505 on the two schema-level uniqueness
// guards into the taxonomy errors callers already expect from the
// check-then-insert path.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return errs.ErrDuplicateEmail
		case "tag_requests_open_slot_key":
			return errs.ErrDuplicateSlot
		}
	}
	return err
}
