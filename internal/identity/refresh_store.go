package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore registra los jti vivos. Consume es de un solo uso: dos
// rotaciones concurrentes del mismo refresh token no pueden ganar ambas.
type RefreshTokenStore interface {
	Save(ctx context.Context, jti, userID string, ttl time.Duration) error
	Consume(ctx context.Context, jti string) (userID string, err error)
	Revoke(ctx context.Context, jti string) error
}

const (
	refreshKeyPrefix  = "auth:refresh:"
	defaultRefreshTTL = 30 * 24 * time.Hour
	refreshOpTimeout  = 500 * time.Millisecond
)

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

type memoryRefreshTokenStore struct {
	mu      sync.Mutex
	entries map[string]refreshEntry
	now     func() time.Time
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		entries: make(map[string]refreshEntry),
		now:     time.Now,
	}
}

func (s *memoryRefreshTokenStore) Save(_ context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	s.mu.Lock()
	s.entries[jti] = refreshEntry{userID: userID, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryRefreshTokenStore) Consume(_ context.Context, jti string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[strings.TrimSpace(jti)]
	if !ok {
		return "", ErrRefreshNotFound
	}
	delete(s.entries, strings.TrimSpace(jti))
	if s.now().After(entry.expiresAt) {
		return "", ErrRefreshNotFound
	}
	return entry.userID, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	delete(s.entries, strings.TrimSpace(jti))
	s.mu.Unlock()
	return nil
}

// refreshRedis es el subconjunto de *redis.Client que usa el store.
type refreshRedis interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisRefreshTokenStore struct {
	client refreshRedis
}

// NewRedisRefreshTokenStore devuelve nil si no hay cliente; NewTokenIssuer cae a memoria.
func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{client: client}
}

func (s *redisRefreshTokenStore) Save(ctx context.Context, jti, userID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	ctx, cancel := context.WithTimeout(ctx, refreshOpTimeout)
	defer cancel()
	return s.client.Set(ctx, refreshKeyPrefix+jti, userID, ttl).Err()
}

// Consume usa GETDEL para que la lectura y el borrado sean una sola operacion.
func (s *redisRefreshTokenStore) Consume(ctx context.Context, jti string) (string, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return "", ErrRefreshNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, refreshOpTimeout)
	defer cancel()
	userID, err := s.client.GetDel(ctx, refreshKeyPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRefreshNotFound
	}
	return userID, err
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, refreshOpTimeout)
	defer cancel()
	return s.client.Del(ctx, refreshKeyPrefix+jti).Err()
}
