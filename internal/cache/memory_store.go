package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore implementa Store en memoria para desarrollo local y tests.
// Solo entiende los scripts de incremento de este paquete.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value     string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

// lookup asume el lock tomado.
func (s *MemoryStore) lookup(key string) (memoryItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return memoryItem{}, false
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		delete(s.items, key)
		return memoryItem{}, false
	}
	return item, true
}

func (s *MemoryStore) Get(ctx context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	item, ok := s.lookup(key)
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(item.value)
	return cmd
}

func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx, "set", key)
	var str string
	switch v := value.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		str = fmt.Sprint(v)
	}
	item := memoryItem{value: str}
	if expiration > 0 {
		item.expiresAt = s.now().Add(expiration)
	}
	s.items[key] = item
	cmd.SetVal("OK")
	return cmd
}

func (s *MemoryStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, key := range keys {
		if _, ok := s.lookup(key); ok {
			delete(s.items, key)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (s *MemoryStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewCmd(ctx, "eval")
	if script != incrementScript && script != incrementWithTTLScript {
		cmd.SetErr(errors.New("memory store: unsupported script"))
		return cmd
	}
	if len(keys) != 1 || len(args) != 1 {
		cmd.SetErr(errors.New("memory store: unexpected eval arguments"))
		return cmd
	}
	seconds, ok := args[0].(int)
	if !ok {
		cmd.SetErr(errors.New("memory store: ttl must be int seconds"))
		return cmd
	}
	key := keys[0]
	item, exists := s.lookup(key)
	var current int64
	if exists {
		if _, err := fmt.Sscan(item.value, &current); err != nil {
			cmd.SetErr(errors.New("ERR value is not an integer or out of range"))
			return cmd
		}
	}
	current++
	item.value = fmt.Sprint(current)
	if current == 1 {
		item.expiresAt = s.now().Add(time.Duration(seconds) * time.Second)
	}
	s.items[key] = item

	if script == incrementScript {
		cmd.SetVal(current)
		return cmd
	}
	ttl := int64(-1)
	if !item.expiresAt.IsZero() {
		ttl = int64(item.expiresAt.Sub(s.now()).Seconds())
	}
	cmd.SetVal([]interface{}{current, ttl})
	return cmd
}

func (s *MemoryStore) Scan(ctx context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewScanCmd(ctx, nil, "scan")
	prefix, wildcard := strings.CutSuffix(match, "*")
	var keys []string
	for key := range s.items {
		if _, ok := s.lookup(key); !ok {
			continue
		}
		if (wildcard && strings.HasPrefix(key, prefix)) || (!wildcard && key == match) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	cmd.SetVal(keys, 0)
	return cmd
}
