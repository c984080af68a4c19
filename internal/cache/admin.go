package cache

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Health resume la disponibilidad del store.
type Health struct {
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency"`
}

// Stats cuenta claves por namespace.
type Stats struct {
	Available     bool `json:"available"`
	SessionKeys   int  `json:"session_keys"`
	ProfileKeys   int  `json:"profile_keys"`
	AttemptKeys   int  `json:"attempt_keys"`
	RateLimitKeys int  `json:"rate_limit_keys"`
}

var authPrefixes = []string{SessionPrefix, ProfilePrefix, AttemptsPrefix, RateLimitPrefix}

// HealthCheck escribe, lee y borra una clave de prueba con TTL corto.
func (c *SessionCache) HealthCheck(ctx context.Context) Health {
	if !c.Enabled() {
		return Health{}
	}
	start := time.Now()
	value := strconv.FormatInt(start.UnixNano(), 10)
	if !c.Set(ctx, healthKey, []byte(value), 10*time.Second) {
		return Health{Latency: time.Since(start)}
	}
	got := c.Get(ctx, healthKey)
	c.Delete(ctx, healthKey)
	return Health{
		Available: string(got) == value,
		Latency:   time.Since(start),
	}
}

// Stats recorre cada namespace con SCAN.
func (c *SessionCache) Stats(ctx context.Context) Stats {
	if !c.Enabled() {
		return Stats{}
	}
	counts := make([]int, len(authPrefixes))
	for i, prefix := range authPrefixes {
		keys, ok := c.keys(ctx, prefix+"*")
		if !ok {
			return Stats{}
		}
		counts[i] = len(keys)
	}
	return Stats{
		Available:     true,
		SessionKeys:   counts[0],
		ProfileKeys:   counts[1],
		AttemptKeys:   counts[2],
		RateLimitKeys: counts[3],
	}
}

// ClearAllAuthCache borra todas las claves de los namespaces de auth y devuelve cuantas borro.
func (c *SessionCache) ClearAllAuthCache(ctx context.Context) int {
	if !c.Enabled() {
		return 0
	}
	deleted := 0
	for _, prefix := range authPrefixes {
		keys, ok := c.keys(ctx, prefix+"*")
		if !ok {
			continue
		}
		for _, key := range keys {
			if c.Delete(ctx, key) {
				deleted++
			}
		}
	}
	c.logger.Info("auth cache cleared", zap.Int("deleted", deleted))
	return deleted
}

func (c *SessionCache) keys(ctx context.Context, pattern string) ([]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*opTimeout)
	defer cancel()
	var (
		out    []string
		cursor uint64
	)
	for {
		page, next, err := c.store.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.fail("scan", pattern, err)
			return nil, false
		}
		out = append(out, page...)
		if next == 0 {
			return out, true
		}
		cursor = next
	}
}
