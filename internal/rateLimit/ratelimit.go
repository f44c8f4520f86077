package rateLimit

import (
	"context"
	"sync"
	"time"

	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"golang.org/x/time/rate"
)

// RateLimiter counts requests per key in fixed Redis windows. Without Redis,
// or while Redis is failing, each process falls back to a local token bucket
// with the same average rate.
type RateLimiter struct {
	redis  *redisadapter.Cache
	logger observability.Logger

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

func NewRateLimiter(redis *redisadapter.Cache, logger observability.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, logger: logger, local: map[string]*rate.Limiter{}}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) bool {
	if limit <= 0 {
		return true
	}

	allowed := false
	if rl.redis != nil {
		n, err := rl.redis.Incr(ctx, "rl:"+key, period)
		if err == nil {
			allowed = n <= int64(limit)
		} else {
			rl.logger.WithError(err).Warn("rate limit falling back to local limiter")
			allowed = rl.localAllow(key, limit, period)
		}
	} else {
		allowed = rl.localAllow(key, limit, period)
	}

	if !allowed {
		observability.RateLimitExceeded.Inc()
	}
	return allowed
}

func (rl *RateLimiter) localAllow(key string, limit int, period time.Duration) bool {
	rl.mu.Lock()
	l, ok := rl.local[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(period/time.Duration(limit)), limit)
		rl.local[key] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}
