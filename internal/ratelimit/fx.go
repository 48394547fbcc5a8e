package ratelimit

import (
	"time"

	"github.com/astralhq/oraculum/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratelimit",
	fx.Provide(provideRedis),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewLocker),
	fx.Provide(provideGenerationLimiter),
)

// provideRedis returns nil when rate limiting is disabled; every
// consumer tolerates the nil client.
func provideRedis(cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	log.Named("ratelimit").Info("generation rate limiting enabled", zap.String("addr", cfg.RateLimit.RedisAddr))
	return client
}

func provideGenerationLimiter(cfg config.Config, bucket *TokenBucket, locker *Locker, log *zap.Logger) *GenerationLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return NewGenerationLimiter(
		bucket,
		locker,
		log,
		cfg.RateLimit.GenerationRate,
		cfg.RateLimit.GenerationBurst,
		time.Duration(cfg.RateLimit.LockTTLSeconds)*time.Second,
	)
}
