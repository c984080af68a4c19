// Package cache implementa la cache de sesion opcional: snapshots de sesion y
// perfil, contadores de intentos de login y rate limiting generico.
//
// Ninguna operacion devuelve error. Si el store no existe o falla, la cache se
// comporta como fria (miss, false) y los limitadores dejan pasar (fail-open).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"anoint-auth/internal/domain"
	"anoint-auth/internal/metrics"
)

const (
	SessionPrefix   = "auth:session:"
	ProfilePrefix   = "auth:profile:"
	AttemptsPrefix  = "auth:attempts:"
	RateLimitPrefix = "rate_limit:"
	healthKey       = "health:check"

	DefaultSessionTTL = 24 * time.Hour
	DefaultTTL        = time.Hour

	opTimeout = 500 * time.Millisecond
)

// Fixed window: el EXPIRE solo se fija cuando el contador nace.
const incrementScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

const incrementWithTTLScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("TTL", KEYS[1])}
`

// Options configura la cache.
type Options struct {
	Logger     *zap.Logger
	Debug      bool
	Metrics    *metrics.Metrics
	SessionTTL time.Duration
	ProfileTTL time.Duration
}

// SessionCache envuelve un Store con semantica fail-silent.
type SessionCache struct {
	store      Store
	logger     *zap.Logger
	debug      bool
	metrics    *metrics.Metrics
	sessionTTL time.Duration
	profileTTL time.Duration
	now        func() time.Time
}

// New construye la cache. Un store nil (o un *redis.Client nil) la deja deshabilitada.
func New(store Store, opts Options) *SessionCache {
	if rc, ok := store.(*redis.Client); ok && rc == nil {
		store = nil
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.ProfileTTL <= 0 {
		opts.ProfileTTL = DefaultTTL
	}
	return &SessionCache{
		store:      store,
		logger:     logger,
		debug:      opts.Debug,
		metrics:    opts.Metrics,
		sessionTTL: opts.SessionTTL,
		profileTTL: opts.ProfileTTL,
		now:        time.Now,
	}
}

// Enabled indica si hay un store detras.
func (c *SessionCache) Enabled() bool {
	return c != nil && c.store != nil
}

func (c *SessionCache) fail(op, key string, err error) {
	c.metrics.CacheFailOpen(op)
	if c.debug {
		c.logger.Warn("cache operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
}

// Get devuelve nil en miss o error.
func (c *SessionCache) Get(ctx context.Context, key string) []byte {
	if !c.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	val, err := c.store.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.fail("get", key, err)
		}
		return nil
	}
	return val
}

func (c *SessionCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Set(ctx, key, value, ttl).Err(); err != nil {
		c.fail("set", key, err)
		return false
	}
	return true
}

func (c *SessionCache) Delete(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.store.Del(ctx, key).Err(); err != nil {
		c.fail("delete", key, err)
		return false
	}
	return true
}

// GetJSON decodifica el valor en dst; false en miss, error o JSON invalido.
func (c *SessionCache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw := c.Get(ctx, key)
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.fail("decode", key, err)
		return false
	}
	return true
}

func (c *SessionCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.fail("encode", key, err)
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}

// Increment suma uno de forma atomica. El TTL solo se aplica al pasar de ausente a 1.
func (c *SessionCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := c.store.Eval(ctx, incrementScript, []string{key}, ttlSeconds(ttl)).Int64()
	if err != nil {
		c.fail("increment", key, err)
		return 0, false
	}
	return n, true
}

func (c *SessionCache) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, bool) {
	if !c.Enabled() {
		return 0, 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	vals, err := c.store.Eval(ctx, incrementWithTTLScript, []string{key}, ttlSeconds(ttl)).Int64Slice()
	if err != nil || len(vals) != 2 {
		if err == nil {
			err = errors.New("unexpected script reply")
		}
		c.fail("increment", key, err)
		return 0, 0, false
	}
	remaining := time.Duration(vals[1]) * time.Second
	if remaining < 0 {
		remaining = ttl
	}
	return vals[0], remaining, true
}

func ttlSeconds(ttl time.Duration) int {
	seconds := int(ttl.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	return seconds
}

// NormalizeIdentifier aplica trim + lowercase para que variantes del mismo email compartan contador.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// CacheSession guarda el snapshot del usuario resuelto con el TTL de sesion.
func (c *SessionCache) CacheSession(ctx context.Context, user domain.User) bool {
	if !c.Enabled() || user.ID == "" {
		return false
	}
	return c.SetJSON(ctx, SessionPrefix+user.ID, user, c.sessionTTL)
}

func (c *SessionCache) GetSession(ctx context.Context, userID string) (domain.User, bool) {
	var u domain.User
	if userID == "" || !c.GetJSON(ctx, SessionPrefix+userID, &u) {
		return domain.User{}, false
	}
	return u, u.ID == userID
}

func (c *SessionCache) DeleteSession(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	return c.Delete(ctx, SessionPrefix+userID)
}

// CacheProfile guarda la fila de perfil con el TTL por defecto (mas corto que la sesion).
func (c *SessionCache) CacheProfile(ctx context.Context, profile domain.Profile) bool {
	if !c.Enabled() || profile.ID == "" {
		return false
	}
	return c.SetJSON(ctx, ProfilePrefix+profile.ID, profile, c.profileTTL)
}

func (c *SessionCache) GetProfile(ctx context.Context, userID string) (domain.Profile, bool) {
	var p domain.Profile
	if userID == "" || !c.GetJSON(ctx, ProfilePrefix+userID, &p) {
		return domain.Profile{}, false
	}
	return p, p.ID == userID
}

func (c *SessionCache) DeleteProfile(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	return c.Delete(ctx, ProfilePrefix+userID)
}

// ClearUser borra los snapshots de sesion y perfil de un usuario.
func (c *SessionCache) ClearUser(ctx context.Context, userID string) {
	c.DeleteSession(ctx, userID)
	c.DeleteProfile(ctx, userID)
}
