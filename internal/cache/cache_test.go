package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"anoint-auth/internal/domain"
)

type failingStore struct {
	err       error
	lastKeys  []string
	lastArgs  []interface{}
	evalCalls int
}

func (f *failingStore) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f *failingStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f *failingStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f *failingStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.evalCalls++
	f.lastKeys = keys
	f.lastArgs = args
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(f.err)
	return cmd
}

func (f *failingStore) Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd {
	cmd := redis.NewScanCmd(ctx, nil)
	cmd.SetErr(f.err)
	return cmd
}

type mockEvalStore struct {
	failingStore
	lastScript string
	result     interface{}
}

func (m *mockEvalStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	cmd.SetVal(m.result)
	return cmd
}

func newMemoryCache(t *testing.T) (*SessionCache, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return New(store, Options{}), store
}

func TestSessionCache_DisabledIsFailOpen(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*SessionCache{
		"nil receiver":     nil,
		"nil store":        New(nil, Options{}),
		"nil redis client": New((*redis.Client)(nil), Options{}),
	} {
		t.Run(name, func(t *testing.T) {
			if c.Enabled() {
				t.Fatalf("expected disabled cache")
			}
			if c.Get(ctx, "k") != nil {
				t.Fatalf("expected nil on disabled get")
			}
			if c.Set(ctx, "k", []byte("v"), time.Minute) {
				t.Fatalf("expected false on disabled set")
			}
			if res := c.CheckAuthAttempts(ctx, "user@example.com", 5, 15*time.Minute); !res.Allowed || res.AttemptsLeft != 5 {
				t.Fatalf("expected fail-open attempts, got %+v", res)
			}
			if res := c.CheckRateLimit(ctx, "ip:1", 10, time.Minute); !res.Allowed || res.RequestsLeft != 10 {
				t.Fatalf("expected fail-open rate limit, got %+v", res)
			}
			if h := c.HealthCheck(ctx); h.Available {
				t.Fatalf("expected unavailable health")
			}
			if _, ok := c.GetSession(ctx, "u1"); ok {
				t.Fatalf("expected session miss")
			}
		})
	}
}

func TestSessionCache_StoreErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: errors.New("redis down")}
	c := New(store, Options{Debug: true})

	if c.Get(ctx, "k") != nil {
		t.Fatalf("expected nil on failing get")
	}
	if c.Set(ctx, "k", []byte("v"), time.Minute) || c.Delete(ctx, "k") {
		t.Fatalf("expected false on failing writes")
	}
	if _, ok := c.Increment(ctx, "k", time.Minute); ok {
		t.Fatalf("expected increment failure")
	}
	if res := c.CheckAuthAttempts(ctx, "user@example.com", 5, 15*time.Minute); !res.Allowed {
		t.Fatalf("expected fail-open on redis errors")
	}
	if res := c.CheckRateLimit(ctx, "ip:1", 1, time.Minute); !res.Allowed {
		t.Fatalf("expected fail-open rate limit on redis errors")
	}
	if h := c.HealthCheck(ctx); h.Available {
		t.Fatalf("expected unavailable health")
	}
	if s := c.Stats(ctx); s.Available {
		t.Fatalf("expected unavailable stats")
	}
	if n := c.ClearAllAuthCache(ctx); n != 0 {
		t.Fatalf("expected nothing cleared, got %d", n)
	}
}

func TestSessionCache_CheckAuthAttemptsNormalizesKey(t *testing.T) {
	mock := &mockEvalStore{result: int64(2)}
	c := New(mock, Options{})

	res := c.CheckAuthAttempts(context.Background(), " User@Example.COM ", 5, 2*time.Minute)
	if !res.Allowed || res.AttemptsLeft != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "auth:attempts:user@example.com" {
		t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
	}
	if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
		t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
	}
	if mock.lastScript != incrementScript {
		t.Fatalf("expected increment script")
	}
}

func TestSessionCache_AuthAttemptsLockAndReset(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCache(t)

	for i := 1; i <= 5; i++ {
		res := c.CheckAuthAttempts(ctx, "user@example.com", 5, 15*time.Minute)
		if !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if res.AttemptsLeft != 5-i {
			t.Fatalf("attempt %d: expected %d left, got %d", i, 5-i, res.AttemptsLeft)
		}
	}
	if res := c.CheckAuthAttempts(ctx, "USER@example.com ", 5, 15*time.Minute); res.Allowed {
		t.Fatalf("expected sixth attempt rejected")
	}
	if !c.ResetAuthAttempts(ctx, " user@EXAMPLE.com") {
		t.Fatalf("expected reset to delete the counter")
	}
	if res := c.CheckAuthAttempts(ctx, "user@example.com", 5, 15*time.Minute); !res.Allowed || res.AttemptsLeft != 4 {
		t.Fatalf("expected fresh counter after reset, got %+v", res)
	}
}

func TestSessionCache_FixedWindow(t *testing.T) {
	ctx := context.Background()
	c, store := newMemoryCache(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	c.now = store.now

	if n, _ := c.Increment(ctx, "rate_limit:x", time.Minute); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	now = now.Add(50 * time.Second)
	if n, _ := c.Increment(ctx, "rate_limit:x", time.Minute); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	// la segunda llamada no extiende la ventana
	now = now.Add(11 * time.Second)
	if n, _ := c.Increment(ctx, "rate_limit:x", time.Minute); n != 1 {
		t.Fatalf("expected window to restart at 1, got %d", n)
	}
}

func TestSessionCache_CheckRateLimit(t *testing.T) {
	ctx := context.Background()
	c, store := newMemoryCache(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	c.now = store.now

	first := c.CheckRateLimit(ctx, "api:1.2.3.4", 2, time.Minute)
	if !first.Allowed || first.RequestsLeft != 1 {
		t.Fatalf("unexpected first result %+v", first)
	}
	if !first.ResetTime.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected reset time %v", first.ResetTime)
	}
	c.CheckRateLimit(ctx, "api:1.2.3.4", 2, time.Minute)
	third := c.CheckRateLimit(ctx, "api:1.2.3.4", 2, time.Minute)
	if third.Allowed || third.RequestsLeft != 0 {
		t.Fatalf("expected third request rejected, got %+v", third)
	}
}

func TestSessionCache_SessionAndProfileSnapshots(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCache(t)
	user := domain.User{ID: "u1", Email: "user@example.com", Role: domain.RoleMember, EmailVerified: true}

	if !c.CacheSession(ctx, user) {
		t.Fatalf("expected session cached")
	}
	got, ok := c.GetSession(ctx, "u1")
	if !ok || got.Email != user.Email || got.Role != domain.RoleMember {
		t.Fatalf("unexpected session snapshot %+v %v", got, ok)
	}
	if !c.CacheProfile(ctx, domain.Profile{ID: "u1", DisplayName: "Ana", IsAdmin: true}) {
		t.Fatalf("expected profile cached")
	}
	p, ok := c.GetProfile(ctx, "u1")
	if !ok || !p.IsAdmin || p.DisplayName != "Ana" {
		t.Fatalf("unexpected profile snapshot %+v", p)
	}

	c.ClearUser(ctx, "u1")
	if _, ok := c.GetSession(ctx, "u1"); ok {
		t.Fatalf("expected session cleared")
	}
	if _, ok := c.GetProfile(ctx, "u1"); ok {
		t.Fatalf("expected profile cleared")
	}
}

func TestSessionCache_CorruptSnapshotIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCache(t)
	c.Set(ctx, SessionPrefix+"u1", []byte("{not json"), time.Minute)
	if _, ok := c.GetSession(ctx, "u1"); ok {
		t.Fatalf("expected corrupt snapshot treated as miss")
	}
}

func TestSessionCache_HealthStatsAndClear(t *testing.T) {
	ctx := context.Background()
	c, _ := newMemoryCache(t)

	if h := c.HealthCheck(ctx); !h.Available {
		t.Fatalf("expected available health")
	}

	c.CacheSession(ctx, domain.User{ID: "u1"})
	c.CacheSession(ctx, domain.User{ID: "u2"})
	c.CacheProfile(ctx, domain.Profile{ID: "u1"})
	c.CheckAuthAttempts(ctx, "a@example.com", 5, time.Minute)
	c.CheckRateLimit(ctx, "ip", 5, time.Minute)
	c.Set(ctx, "unrelated", []byte("x"), time.Minute)

	stats := c.Stats(ctx)
	want := Stats{Available: true, SessionKeys: 2, ProfileKeys: 1, AttemptKeys: 1, RateLimitKeys: 1}
	if stats != want {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if n := c.ClearAllAuthCache(ctx); n != 5 {
		t.Fatalf("expected 5 keys cleared, got %d", n)
	}
	if c.Get(ctx, "unrelated") == nil {
		t.Fatalf("expected unrelated key to survive")
	}
	if stats := c.Stats(ctx); stats.SessionKeys != 0 || stats.AttemptKeys != 0 {
		t.Fatalf("expected empty namespaces, got %+v", stats)
	}
}
