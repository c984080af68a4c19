package cache

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts   = 5
	DefaultLockoutWindow = 15 * time.Minute
)

// AttemptResult es el veredicto del contador de intentos de login.
type AttemptResult struct {
	Allowed      bool `json:"allowed"`
	AttemptsLeft int  `json:"attempts_left"`
}

// RateLimitResult es el veredicto de un contador generico.
type RateLimitResult struct {
	Allowed      bool      `json:"allowed"`
	RequestsLeft int       `json:"requests_left"`
	ResetTime    time.Time `json:"reset_time"`
}

// CheckAuthAttempts cuenta un intento para el identificador normalizado.
// Sin cache disponible devuelve Allowed=true.
func (c *SessionCache) CheckAuthAttempts(ctx context.Context, identifier string, maxAttempts int, window time.Duration) AttemptResult {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	attempts, ok := c.Increment(ctx, AttemptsPrefix+NormalizeIdentifier(identifier), window)
	if !ok {
		return AttemptResult{Allowed: true, AttemptsLeft: maxAttempts}
	}
	allowed := attempts <= int64(maxAttempts)
	if !allowed {
		c.metrics.RateLimited("auth")
	}
	return AttemptResult{
		Allowed:      allowed,
		AttemptsLeft: max(0, maxAttempts-int(attempts)),
	}
}

// ResetAuthAttempts borra el contador tras un login exitoso.
func (c *SessionCache) ResetAuthAttempts(ctx context.Context, identifier string) bool {
	return c.Delete(ctx, AttemptsPrefix+NormalizeIdentifier(identifier))
}

// CheckRateLimit es el analogo generico; mismo criterio fail-open.
func (c *SessionCache) CheckRateLimit(ctx context.Context, identifier string, maxRequests int, window time.Duration) RateLimitResult {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	var now time.Time
	if c != nil {
		now = c.now()
	} else {
		now = time.Now()
	}
	count, remaining, ok := c.incrementWithTTL(ctx, RateLimitPrefix+identifier, window)
	if !ok {
		return RateLimitResult{Allowed: true, RequestsLeft: maxRequests, ResetTime: now.Add(window)}
	}
	allowed := count <= int64(maxRequests)
	if !allowed {
		c.metrics.RateLimited("request")
	}
	return RateLimitResult{
		Allowed:      allowed,
		RequestsLeft: max(0, maxRequests-int(count)),
		ResetTime:    now.Add(remaining),
	}
}
