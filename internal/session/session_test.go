package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"docentdispatch/internal/errs"
)

func TestMemorySessionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	userID, err := store.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %s", userID)
	}

	if err := store.Destroy(ctx, token); err != nil {
		t.Fatalf("destroy error: %v", err)
	}
	if _, err := store.Resolve(ctx, token); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after destroy, got %v", err)
	}
}

func TestMemorySessionExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	token, err := store.Create(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	now = now.Add(time.Hour + time.Second)
	if _, err := store.Resolve(ctx, token); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated after expiry, got %v", err)
	}
}

func TestMemorySessionUnknownToken(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Resolve(context.Background(), "bogus"); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for unknown token, got %v", err)
	}
}
