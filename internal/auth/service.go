// Package auth implements credential verification with an account-lockout
// policy and the password-reset token flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"docentdispatch/internal/crypto"
	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/notify"
	"docentdispatch/internal/store"
)

type Service struct {
	store    store.Store
	notifier notify.Notifier
	domain   string

	maxFails      int
	lockoutWindow time.Duration
	resetTokenTTL time.Duration

	now func() time.Time
}

func NewService(st store.Store, notifier notify.Notifier, domain string, maxFails int, lockoutWindow, resetTokenTTL time.Duration) *Service {
	return &Service{
		store:         st,
		notifier:      notifier,
		domain:        domain,
		maxFails:      maxFails,
		lockoutWindow: lockoutWindow,
		resetTokenTTL: resetTokenTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Login verifies credentials under the lockout policy and returns the account
// on success. Unknown email and wrong password produce the same error so the
// response cannot be used to enumerate accounts. Session establishment is the
// caller's concern.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, error) {
	now := s.now()

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.User{}, err
	}
	known := err == nil

	if known && user.IsLocked(now) {
		return model.User{}, errs.LockedError{Minutes: remainingMinutes(*user.LockedUntil, now)}
	}

	if !known || crypto.CheckPassword(user.PasswordHash, password) != nil {
		if known {
			return model.User{}, s.recordFailure(ctx, user, now)
		}
		return model.User{}, errs.ErrInvalidCredentials
	}

	// Successful login reopens the account and clears the failure counter,
	// including after an expired lockout window.
	if user.FailedLoginAttempts != 0 || user.LockedUntil != nil {
		if err := s.store.UpdateLoginState(ctx, user.ID, store.LoginState{}); err != nil {
			return model.User{}, err
		}
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) recordFailure(ctx context.Context, user model.User, now time.Time) error {
	state := store.LoginState{FailedLoginAttempts: user.FailedLoginAttempts + 1}
	locked := state.FailedLoginAttempts >= s.maxFails
	if locked {
		until := now.Add(s.lockoutWindow)
		state.LockedUntil = &until
	}
	if err := s.store.UpdateLoginState(ctx, user.ID, state); err != nil {
		return err
	}
	if locked {
		return errs.LockedError{Minutes: remainingMinutes(*state.LockedUntil, now)}
	}
	return errs.ErrInvalidCredentials
}

func remainingMinutes(until, now time.Time) int {
	minutes := int(until.Sub(now).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}

// RequestPasswordReset always succeeds, whether or not the email matches an
// account; only a match produces a token and a notification. Older unused
// tokens are superseded.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.store.InvalidateResetTokens(ctx, user.ID); err != nil {
		return err
	}

	token, err := crypto.NewToken()
	if err != nil {
		return err
	}
	now := s.now()
	record := model.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: now.Add(s.resetTokenTTL),
		CreatedAt: now,
	}
	if err := s.store.CreatePasswordResetToken(ctx, record); err != nil {
		return err
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.domain, token)
	s.notifier.SendPasswordReset(ctx, user, resetLink)
	log.Printf("password reset issued for user %s", user.ID)
	return nil
}

// ResetPassword consumes an unused, unexpired token and stores the new
// password hash on the owning account.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.store.GetUnusedResetToken(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return err
	}
	if record.ExpiresAt.Before(s.now()) {
		return errs.ErrInvalidOrExpiredToken
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.UpdateUser(ctx, record.UserID, store.UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	return s.store.MarkResetTokenUsed(ctx, record.ID)
}
