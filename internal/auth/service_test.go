package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docentdispatch/internal/crypto"
	"docentdispatch/internal/errs"
	"docentdispatch/internal/model"
	"docentdispatch/internal/notify"
	"docentdispatch/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *notify.Recorder, *time.Time) {
	t.Helper()
	st := memory.New()
	recorder := notify.NewRecorder()
	svc := NewService(st, recorder, "https://docents.example.org", 5, 15*time.Minute, time.Hour)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, st, recorder, &now
}

func seedUser(t *testing.T, st *memory.Store, email, password string) model.User {
	t.Helper()
	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	user := model.User{
		ID:           "user-" + email,
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Dana",
		LastName:     "Lee",
		Role:         model.RoleNewDocent,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestLoginSuccess(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	seedUser(t, st, "dana@example.org", "hunter42")

	user, err := svc.Login(context.Background(), "dana@example.org", "hunter42")
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if user.Email != "dana@example.org" {
		t.Fatalf("unexpected user %s", user.Email)
	}
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	seedUser(t, st, "dana@example.org", "hunter42")

	_, unknownErr := svc.Login(context.Background(), "nobody@example.org", "hunter42")
	_, wrongErr := svc.Login(context.Background(), "dana@example.org", "wrong")
	if !errors.Is(unknownErr, errs.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, errs.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", wrongErr)
	}
	// Identical message, no account enumeration.
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("expected identical errors, got %q vs %q", unknownErr, wrongErr)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := svc.Login(ctx, user.Email, "wrong"); !errors.Is(err, errs.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	var locked errs.LockedError
	if _, err := svc.Login(ctx, user.Email, "wrong"); !errors.As(err, &locked) {
		t.Fatalf("expected lockout on 5th failure, got %v", err)
	}
	if locked.Minutes != 15 {
		t.Fatalf("expected 15 minutes remaining, got %d", locked.Minutes)
	}

	stored, err := st.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.LockedUntil == nil {
		t.Fatalf("expected locked_until to be set")
	}

	// The correct password is rejected while the window is open.
	if _, err := svc.Login(ctx, user.Email, "hunter42"); !errors.As(err, &locked) {
		t.Fatalf("expected lockout with correct password, got %v", err)
	}
}

func TestLockoutExpiresLazily(t *testing.T) {
	svc, st, _, now := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, user.Email, "wrong")
	}

	*now = now.Add(16 * time.Minute)
	logged, err := svc.Login(ctx, user.Email, "hunter42")
	if err != nil {
		t.Fatalf("expected login after lockout expiry, got %v", err)
	}
	if logged.FailedLoginAttempts != 0 || logged.LockedUntil != nil {
		t.Fatalf("expected counter reset and lock cleared")
	}

	stored, err := st.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("expected persisted reset, got attempts=%d", stored.FailedLoginAttempts)
	}
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = svc.Login(ctx, user.Email, "wrong")
	}
	if _, err := svc.Login(ctx, user.Email, "hunter42"); err != nil {
		t.Fatalf("login error: %v", err)
	}
	stored, err := st.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if stored.FailedLoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", stored.FailedLoginAttempts)
	}
}

func TestRequestPasswordResetAntiEnumeration(t *testing.T) {
	svc, st, recorder, _ := newTestService(t)
	seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, "dana@example.org"); err != nil {
		t.Fatalf("reset request error: %v", err)
	}
	if err := svc.RequestPasswordReset(ctx, "nobody@example.org"); err != nil {
		t.Fatalf("expected success for unknown email, got %v", err)
	}

	if _, ok := recorder.ResetLinks["dana@example.org"]; !ok {
		t.Fatalf("expected notification for existing account")
	}
	if _, ok := recorder.ResetLinks["nobody@example.org"]; ok {
		t.Fatalf("expected no notification for unknown email")
	}
}

func TestResetTokenSingleUse(t *testing.T) {
	svc, st, recorder, _ := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("reset request error: %v", err)
	}
	link := recorder.ResetLinks[user.Email]
	token := link[strings.Index(link, "token=")+len("token="):]

	if err := svc.ResetPassword(ctx, token, "newpassword"); err != nil {
		t.Fatalf("reset error: %v", err)
	}
	if _, err := svc.Login(ctx, user.Email, "newpassword"); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}

	if err := svc.ResetPassword(ctx, token, "another"); !errors.Is(err, errs.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected invalid token on reuse, got %v", err)
	}
}

func TestResetTokenExpires(t *testing.T) {
	svc, st, recorder, now := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("reset request error: %v", err)
	}
	link := recorder.ResetLinks[user.Email]
	token := link[strings.Index(link, "token=")+len("token="):]

	*now = now.Add(time.Hour + time.Minute)
	if err := svc.ResetPassword(ctx, token, "newpassword"); !errors.Is(err, errs.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestNewResetTokenSupersedesOld(t *testing.T) {
	svc, st, recorder, _ := newTestService(t)
	user := seedUser(t, st, "dana@example.org", "hunter42")
	ctx := context.Background()

	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("reset request error: %v", err)
	}
	first := recorder.ResetLinks[user.Email]
	if err := svc.RequestPasswordReset(ctx, user.Email); err != nil {
		t.Fatalf("second reset request error: %v", err)
	}
	second := recorder.ResetLinks[user.Email]
	if first == second {
		t.Fatalf("expected a fresh token")
	}

	oldToken := first[strings.Index(first, "token=")+len("token="):]
	if err := svc.ResetPassword(ctx, oldToken, "newpassword"); !errors.Is(err, errs.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected superseded token to be rejected, got %v", err)
	}
}
