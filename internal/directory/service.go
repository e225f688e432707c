// Package directory manages docent accounts: creation, partial updates,
// deletion guarded by dependent tag requests, and line-oriented bulk import.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"docentdispatch/internal/crypto"
	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/store"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is a row of account data. Password is only honored by Register;
// coordinator-created and imported accounts get a placeholder password and go
// through the reset flow.
type CreateInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     *string
	Role      model.Role
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Email) == "" {
		return errs.NewValidation("email", "required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return errs.NewValidation("firstName", "required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return errs.NewValidation("lastName", "required")
	}
	if !in.Role.Valid() {
		return errs.NewValidation("role", "must be new_docent, seasoned_docent or coordinator")
	}
	return nil
}

// Register creates an account with a caller-chosen password.
func (s *Service) Register(ctx context.Context, input CreateInput) (model.User, error) {
	if err := input.validate(); err != nil {
		return model.User{}, err
	}
	if input.Password == "" {
		return model.User{}, errs.NewValidation("password", "required")
	}
	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return model.User{}, err
	}
	return s.insert(ctx, input, hash)
}

// Create adds an account on a coordinator's behalf. The account receives an
// unguessable placeholder password, forcing a password reset before first
// login.
func (s *Service) Create(ctx context.Context, input CreateInput) (model.User, error) {
	if err := input.validate(); err != nil {
		return model.User{}, err
	}
	placeholder, err := crypto.NewPlaceholderPassword()
	if err != nil {
		return model.User{}, err
	}
	hash, err := crypto.HashPassword(placeholder)
	if err != nil {
		return model.User{}, err
	}
	return s.insert(ctx, input, hash)
}

func (s *Service) insert(ctx context.Context, input CreateInput, passwordHash string) (model.User, error) {
	if _, err := s.store.GetUserByEmail(ctx, input.Email); err == nil {
		return model.User{}, errs.ErrDuplicateEmail
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, err
	}

	now := s.now()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Phone:        input.Phone,
		Role:         input.Role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// UpdateInput carries a partial account update; nil fields stay untouched.
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
	Role      *model.Role
	Password  *string
}

func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (model.User, error) {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		return model.User{}, err
	}

	update := store.UserUpdate{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
	}
	if input.Email != nil {
		if other, err := s.store.GetUserByEmail(ctx, *input.Email); err == nil && other.ID != id {
			return model.User{}, errs.ErrDuplicateEmail
		} else if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return model.User{}, err
		}
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return model.User{}, errs.NewValidation("role", "must be new_docent, seasoned_docent or coordinator")
		}
		update.Role = input.Role
	}
	if input.Password != nil && *input.Password != "" {
		hash, err := crypto.HashPassword(*input.Password)
		if err != nil {
			return model.User{}, err
		}
		update.PasswordHash = &hash
	}
	return s.store.UpdateUser(ctx, id, update)
}

// Delete hard-deletes an account unless a tag request still references it as
// requester or claimer.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.GetUserByID(ctx, id); err != nil {
		return err
	}
	dependent, err := s.store.UserHasTagRequests(ctx, id)
	if err != nil {
		return err
	}
	if dependent {
		return errs.ErrHasDependentRequests
	}
	return s.store.DeleteUser(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (model.User, error) {
	return s.store.GetUserByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// RowError reports a failed import row by its 1-based line number.
type RowError struct {
	Line    int    `json:"line"`
	Email   string `json:"email"`
	Message string `json:"error"`
}

type ImportResult struct {
	Success int        `json:"success"`
	Errors  []RowError `json:"errors"`
}

// BulkImport creates accounts row by row, in order. A failing row is recorded
// and skipped; it never aborts the rows after it. Partial success is the
// normal outcome, not a failure.
func (s *Service) BulkImport(ctx context.Context, rows []CreateInput) ImportResult {
	result := ImportResult{Errors: make([]RowError, 0)}
	for i, row := range rows {
		if _, err := s.Create(ctx, row); err != nil {
			email := row.Email
			if email == "" {
				email = "unknown"
			}
			result.Errors = append(result.Errors, RowError{
				Line:    i + 1,
				Email:   email,
				Message: err.Error(),
			})
			continue
		}
		result.Success++
	}
	return result
}

// Bootstrap creates the initial coordinator account if adminEmail is set and
// no account holds it yet. The account gets a placeholder password, so access
// goes through the password-reset flow.
func (s *Service) Bootstrap(ctx context.Context, adminEmail, firstName, lastName, phone string) (model.User, bool, error) {
	if adminEmail == "" {
		return model.User{}, false, nil
	}
	if _, err := s.store.GetUserByEmail(ctx, adminEmail); err == nil {
		return model.User{}, false, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, false, err
	}

	input := CreateInput{
		Email:     adminEmail,
		FirstName: firstName,
		LastName:  lastName,
		Role:      model.RoleCoordinator,
	}
	if phone != "" {
		input.Phone = &phone
	}
	user, err := s.Create(ctx, input)
	if err != nil {
		return model.User{}, false, fmt.Errorf("bootstrap coordinator: %w", err)
	}
	return user, true, nil
}
