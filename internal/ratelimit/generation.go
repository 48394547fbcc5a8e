package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// GenerationLimiter bounds how often a user may trigger paid generation
// and offers a best-effort single-flight lock per artifact key. Both are
// cost controls: when redis is unavailable the limiter fails open and
// the conditional insert in the artifact store remains the sole
// correctness guarantee.
type GenerationLimiter struct {
	bucket  *TokenBucket
	locker  *Locker
	log     *zap.Logger
	rate    float64
	burst   int
	lockTTL time.Duration
}

func NewGenerationLimiter(bucket *TokenBucket, locker *Locker, log *zap.Logger, rate float64, burst int, lockTTL time.Duration) *GenerationLimiter {
	if bucket == nil && locker == nil {
		return nil
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &GenerationLimiter{
		bucket:  bucket,
		locker:  locker,
		log:     log.Named("ratelimit.generation"),
		rate:    rate,
		burst:   burst,
		lockTTL: lockTTL,
	}
}

// Allow consumes one generation token for the user/feature pair. Errors
// talking to redis are logged and treated as allowed.
func (g *GenerationLimiter) Allow(ctx context.Context, userID snowflake.ID, feature string) bool {
	if g == nil || g.bucket == nil {
		return true
	}

	key := fmt.Sprintf("oraculum:gen:%s:%s", userID.String(), feature)
	res, err := g.bucket.Allow(ctx, key, g.rate, g.burst)
	if err != nil {
		g.log.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		return true
	}
	return res.Allowed
}

// TryLock attempts the single-flight lock for an artifact slot. The
// release func is always safe to call.
func (g *GenerationLimiter) TryLock(ctx context.Context, slot string) (release func(), acquired bool) {
	release = func() {}
	if g == nil || g.locker == nil {
		return release, true
	}

	key := "oraculum:genlock:" + slot
	token, ok, err := g.locker.TryLock(ctx, key, g.lockTTL)
	if err != nil {
		g.log.Warn("lock unavailable, proceeding without it", zap.Error(err))
		return release, true
	}
	if !ok {
		return release, false
	}
	return func() {
		if err := g.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			g.log.Warn("lock release failed", zap.Error(err))
		}
	}, true
}
