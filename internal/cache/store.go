package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store es el subconjunto de comandos redis que usa la cache. *redis.Client lo cumple.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// NewRedisStore abre un cliente redis. Devuelve nil si falta alguno de los dos valores
// de configuracion, lo que deja la cache deshabilitada.
func NewRedisStore(addr, password string, db int) *redis.Client {
	if addr == "" || password == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}
