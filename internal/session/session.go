// Package session issues and resolves opaque server-side session tokens.
// Tokens are stored hashed; a session binds a token to an account id for a
// fixed TTL.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"docentdispatch/internal/crypto"
	"docentdispatch/internal/errs"
)

type Store interface {
	// Create issues a new session token bound to userID.
	Create(ctx context.Context, userID string, ttl time.Duration) (string, error)
	// Resolve returns the account id a token is bound to, or
	// errs.ErrUnauthenticated when the token is unknown or expired.
	Resolve(ctx context.Context, token string) (string, error)
	// Destroy removes the session; resolving the token afterwards fails.
	Destroy(ctx context.Context, token string) error
}

const redisKeyPrefix = "session:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := crypto.NewToken()
	if err != nil {
		return "", err
	}
	key := redisKeyPrefix + crypto.HashToken(token)
	if err := s.client.Set(ctx, key, userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisStore) Resolve(ctx context.Context, token string) (string, error) {
	key := redisKeyPrefix + crypto.HashToken(token)
	userID, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errs.ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *RedisStore) Destroy(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKeyPrefix+crypto.HashToken(token)).Err()
}

type memSession struct {
	userID    string
	expiresAt time.Time
}

// MemoryStore backs sessions when no redis is configured. Expiry is lazy,
// checked on resolve.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := crypto.NewToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[crypto.HashToken(token)] = memSession{
		userID:    userID,
		expiresAt: s.now().Add(ttl),
	}
	return token, nil
}

func (s *MemoryStore) Resolve(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := crypto.HashToken(token)
	record, ok := s.sessions[key]
	if !ok {
		return "", errs.ErrUnauthenticated
	}
	if !record.expiresAt.After(s.now()) {
		delete(s.sessions, key)
		return "", errs.ErrUnauthenticated
	}
	return record.userID, nil
}

func (s *MemoryStore) Destroy(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, crypto.HashToken(token))
	return nil
}
