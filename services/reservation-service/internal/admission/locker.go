// Package admission provides a cross-replica lock around reservation admission for one
// field and day. It narrows contention before the store's own atomic check; the store
// remains the authority on whether a reservation is admitted.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrBusy = errors.New("admission lock busy")

type Locker interface {
	// Acquire blocks until key is held or the wait budget runs out. release is never nil.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Noop admits everyone; used when Redis is not configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Only the holder's token may delete the lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb    redisClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

type RedisConfig struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

func NewRedisLocker(rdb redisClient, cfg RedisConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "admission"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Second
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 2 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 25 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, prefix: cfg.Prefix, ttl: cfg.TTL, wait: cfg.Wait, retry: cfg.Retry}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	key = l.prefix + ":" + key
	token := uuid.NewString()
	deadline := time.NewTimer(l.wait)
	defer deadline.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return func() {}, err
		}
		if ok {
			return func() {
				// The request context may already be done; release on a short context of its own.
				relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = releaseScript.Run(relCtx, l.rdb, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return func() {}, ctx.Err()
		case <-deadline.C:
			return func() {}, ErrBusy
		case <-time.After(l.retry):
		}
	}
}
