package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/travel-reservations/internal/adapters/redis"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"github.com/stretchr/testify/assert"
)

func init() {
	observability.InitMetrics()
}

func TestAllow_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRateLimiter(redisadapter.NewCache(client), observability.NewNopLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(ctx, "user:u1", 3, time.Minute))
	}
	assert.False(t, rl.Allow(ctx, "user:u1", 3, time.Minute))
	assert.True(t, rl.Allow(ctx, "user:u2", 3, time.Minute), "keys are counted separately")

	mr.FastForward(time.Minute)
	assert.True(t, rl.Allow(ctx, "user:u1", 3, time.Minute))
}

func TestAllow_LocalFallback(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	rl := NewRateLimiter(redisadapter.NewCache(client), observability.NewNopLogger())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "ip:10.0.0.1", 2, time.Hour))
	assert.True(t, rl.Allow(ctx, "ip:10.0.0.1", 2, time.Hour))
	assert.False(t, rl.Allow(ctx, "ip:10.0.0.1", 2, time.Hour))
}

func TestAllow_NoRedis(t *testing.T) {
	rl := NewRateLimiter(nil, observability.NewNopLogger())
	ctx := context.Background()

	assert.True(t, rl.Allow(ctx, "k", 1, time.Hour))
	assert.False(t, rl.Allow(ctx, "k", 1, time.Hour))
	assert.True(t, rl.Allow(ctx, "k", 0, time.Hour), "a zero limit disables limiting")
}
