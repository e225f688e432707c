package errs

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrConflict              = errors.New("conflict")
	ErrNotFound              = errors.New("not found")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrDuplicateSlot         = errors.New("a tag request already exists for this date and time slot")
	ErrPastDate              = errors.New("date is in the past")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrAlreadyFilled         = errors.New("this tag request is no longer available")
	ErrHasDependentRequests  = errors.New("cannot delete user with tag requests")
)

// LockedError reports an account-lockout rejection with the whole minutes
// remaining in the lockout window. Minutes is never negative.
type LockedError struct {
	Minutes int
}

func (e LockedError) Error() string {
	return fmt.Sprintf("account is locked, try again in %d minutes", e.Minutes)
}

// ValidationError flags a missing or malformed field. Bulk import collects
// these per row instead of aborting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}
