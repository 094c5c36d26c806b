package cache

import (
	"context"
	"errors"
	"time"

	"github.com/fatflowers/smmpay/pkg/logctx"
	"github.com/fatflowers/smmpay/pkg/tool"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock already held")

// ReleaseFunc drops a held lock. It is safe to call once.
type ReleaseFunc func(ctx context.Context)

// Locker is a best-effort mutual exclusion keyed by string. It guards
// against double clicks, it is not a correctness guarantee.
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// releaseScript deletes the key only if we still own it.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type RedisLocker struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	log   *zap.SugaredLogger
	token func() string
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration, log *zap.SugaredLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, log: log, token: func() string { return tool.RandomToken(16) }}
}

func lockKey(key string) string { return "lock:" + key }

// Acquire fails open: a redis error is logged and the caller proceeds.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	k := lockKey(key)
	token := l.token()
	ok, err := l.rdb.SetNX(ctx, k, token, l.ttl).Result()
	if err != nil {
		logctx.FromCtx(ctx, l.log).Warnw("lock_acquire_failed_open", "key", k, "err", err)
		return func(context.Context) {}, nil
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) {
		if err := l.rdb.Eval(ctx, releaseScript, []string{k}, token).Err(); err != nil {
			logctx.FromCtx(ctx, l.log).Warnw("lock_release_failed", "key", k, "err", err)
		}
	}, nil
}

type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) {}, nil
}
