// Package store defines the persistence boundary shared by the postgres and
// in-memory backends. Implementations return errs.ErrNotFound for missing
// rows and the taxonomy duplicate errors for unique violations.
package store

import (
	"context"
	"time"

	"docentdispatch/internal/model"
)

// UserUpdate carries a partial user update; nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Phone        *string
	Role         *model.Role
	PasswordHash *string
}

// LoginState mutates only the lockout bookkeeping columns.
type LoginState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// TagUpdate carries a partial tag-request update; nil fields are left
// untouched. ClearSeasonedDocent distinguishes "set to null" from "absent".
type TagUpdate struct {
	NewDocentID         *string
	SeasonedDocentID    *string
	ClearSeasonedDocent bool
	Date                *time.Time
	TimeSlot            *model.TimeSlot
	Status              *model.TagStatus
	Notes               *string
}

type Store interface {
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, user model.User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) (model.User, error)
	UpdateLoginState(ctx context.Context, id string, state LoginState) error
	DeleteUser(ctx context.Context, id string) error
	UserHasTagRequests(ctx context.Context, id string) (bool, error)

	CreatePasswordResetToken(ctx context.Context, token model.PasswordResetToken) error
	GetUnusedResetToken(ctx context.Context, token string) (model.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id string) error
	InvalidateResetTokens(ctx context.Context, userID string) error

	CreateTagRequest(ctx context.Context, tag model.TagRequest) error
	GetTagRequest(ctx context.Context, id string) (model.TagRequest, error)
	UpdateTagRequest(ctx context.Context, id string, update TagUpdate) (model.TagRequest, error)
	DeleteTagRequest(ctx context.Context, id string) error
	SlotTaken(ctx context.Context, newDocentID string, date time.Time, slot model.TimeSlot) (bool, error)

	ListTagRequests(ctx context.Context, dateRange *model.DateRange) ([]model.TagRequest, error)
	ListTagRequestsByNewDocent(ctx context.Context, newDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error)
	ListTagRequestsBySeasonedDocent(ctx context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error)
	// ListOpenOrClaimedBy returns requests that are open to claim plus those
	// already claimed by the given seasoned docent.
	ListOpenOrClaimedBy(ctx context.Context, seasonedDocentID string, dateRange *model.DateRange) ([]model.TagRequest, error)
}
