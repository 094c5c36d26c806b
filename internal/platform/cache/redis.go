package cache

import (
	"context"

	cfgpkg "github.com/fatflowers/smmpay/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedis returns nil when no address is configured; callers fall back to
// process-local behavior.
func NewRedis(lc fx.Lifecycle, l *zap.SugaredLogger, cfg *cfgpkg.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		l.Warnw("redis address empty, checkout locks and realtime events are disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				// locks fail open, so an unreachable redis is not fatal
				l.Warnw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
				return nil
			}
			l.Infow("connected to redis", "addr", cfg.Redis.Addr)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Infow("closing redis client")
			return rdb.Close()
		},
	})
	return rdb
}

func newLockerFromConfig(rdb *redis.Client, cfg *cfgpkg.Config, l *zap.SugaredLogger) Locker {
	if rdb == nil {
		return NopLocker{}
	}
	return NewRedisLocker(rdb, cfg.Redis.LockTTL, l)
}

var Module = fx.Options(
	fx.Provide(NewRedis, newLockerFromConfig),
)
