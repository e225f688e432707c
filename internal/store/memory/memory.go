// Package memory is an in-process store used by tests and credential-less
// development runs. It applies the same duplicate rules the postgres schema
// enforces with unique indexes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/store"
)

type Store struct {
	mu     sync.Mutex
	users  map[string]model.User
	tokens map[string]model.PasswordResetToken
	tags   map[string]model.TagRequest
}

func New() *Store {
	return &Store{
		users:  make(map[string]model.User),
		tokens: make(map[string]model.PasswordResetToken),
		tags:   make(map[string]model.TagRequest),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) GetUserByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByEmailLocked(email)
}

func (s *Store) userByEmailLocked(email string) (model.User, error) {
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if s.users[id].Email == email {
			return s.users[id], nil
		}
	}
	return model.User{}, errs.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]model.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (s *Store) CreateUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.userByEmailLocked(user.Email); err == nil {
		return errs.ErrDuplicateEmail
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) UpdateUser(_ context.Context, id string, update store.UserUpdate) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	if update.Email != nil {
		if other, err := s.userByEmailLocked(*update.Email); err == nil && other.ID != id {
			return model.User{}, errs.ErrDuplicateEmail
		}
		user.Email = *update.Email
	}
	if update.FirstName != nil {
		user.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		user.LastName = *update.LastName
	}
	if update.Phone != nil {
		user.Phone = update.Phone
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *Store) UpdateLoginState(_ context.Context, id string, state store.LoginState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	user.FailedLoginAttempts = state.FailedLoginAttempts
	user.LockedUntil = state.LockedUntil
	s.users[id] = user
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) UserHasTagRequests(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range s.tags {
		if tag.NewDocentID == id {
			return true, nil
		}
		if tag.SeasonedDocentID != nil && *tag.SeasonedDocentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreatePasswordResetToken(_ context.Context, token model.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *Store) GetUnusedResetToken(_ context.Context, token string) (model.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.tokens {
		if record.Token == token && !record.Used {
			return record, nil
		}
	}
	return model.PasswordResetToken{}, errs.ErrNotFound
}

func (s *Store) MarkResetTokenUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[id]
	if !ok {
		return errs.ErrNotFound
	}
	record.Used = true
	s.tokens[id] = record
	return nil
}

func (s *Store) InvalidateResetTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.tokens {
		if record.UserID == userID && !record.Used {
			record.Used = true
			s.tokens[id] = record
		}
	}
	return nil
}

func (s *Store) CreateTagRequest(_ context.Context, tag model.TagRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tag.Status == model.StatusRequested {
		for _, existing := range s.tags {
			if existing.Status == model.StatusRequested &&
				existing.NewDocentID == tag.NewDocentID &&
				existing.Date.Equal(tag.Date) &&
				existing.TimeSlot == tag.TimeSlot {
				return errs.ErrDuplicateSlot
			}
		}
	}
	s.tags[tag.ID] = tag
	return nil
}

func (s *Store) GetTagRequest(_ context.Context, id string) (model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[id]
	if !ok {
		return model.TagRequest{}, errs.ErrNotFound
	}
	return tag, nil
}

func (s *Store) UpdateTagRequest(_ context.Context, id string, update store.TagUpdate) (model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[id]
	if !ok {
		return model.TagRequest{}, errs.ErrNotFound
	}
	if update.NewDocentID != nil {
		tag.NewDocentID = *update.NewDocentID
	}
	if update.ClearSeasonedDocent {
		tag.SeasonedDocentID = nil
	} else if update.SeasonedDocentID != nil {
		tag.SeasonedDocentID = update.SeasonedDocentID
	}
	if update.Date != nil {
		tag.Date = *update.Date
	}
	if update.TimeSlot != nil {
		tag.TimeSlot = *update.TimeSlot
	}
	if update.Status != nil {
		tag.Status = *update.Status
	}
	if update.Notes != nil {
		tag.Notes = update.Notes
	}
	tag.UpdatedAt = time.Now().UTC()
	s.tags[id] = tag
	return tag, nil
}

func (s *Store) DeleteTagRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tags[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.tags, id)
	return nil
}

func (s *Store) SlotTaken(_ context.Context, newDocentID string, date time.Time, slot model.TimeSlot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range s.tags {
		if tag.NewDocentID == newDocentID && tag.Date.Equal(date) && tag.TimeSlot == slot {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListTagRequests(_ context.Context, dateRange *model.DateRange) ([]model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(dateRange, func(model.TagRequest) bool { return true }), nil
}

func (s *Store) ListTagRequestsByNewDocent(_ context.Context, newDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(dateRange, func(tag model.TagRequest) bool {
		return tag.NewDocentID == newDocentID
	}), nil
}

func (s *Store) ListTagRequestsBySeasonedDocent(_ context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(dateRange, func(tag model.TagRequest) bool {
		return tag.SeasonedDocentID != nil && *tag.SeasonedDocentID == seasonedDocentID
	}), nil
}

func (s *Store) ListOpenOrClaimedBy(_ context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(dateRange, func(tag model.TagRequest) bool {
		if tag.Status == model.StatusRequested {
			return true
		}
		return tag.SeasonedDocentID != nil && *tag.SeasonedDocentID == seasonedDocentID
	}), nil
}

func (s *Store) collect(dateRange *model.DateRange, keep func(model.TagRequest) bool) []model.TagRequest {
	tags := make([]model.TagRequest, 0)
	for _, tag := range s.tags {
		if dateRange != nil && (tag.Date.Before(dateRange.Start) || tag.Date.After(dateRange.End)) {
			continue
		}
		if keep(tag) {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if !tags[i].Date.Equal(tags[j].Date) {
			return tags[i].Date.Before(tags[j].Date)
		}
		return tags[i].ID < tags[j].ID
	})
	return tags
}
