package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/himera-settings/pkg/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		if i < 2 {
			assert.NoError(t, err)
			assert.True(t, result.Allowed)
		} else {
			assert.ErrorIs(t, err, ErrLimitExceeded)
			assert.False(t, result.Allowed)
		}
	}
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "test:window", 2, time.Second)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	time.Sleep(1100 * time.Millisecond)

	result, err := limiter.Check(ctx, "test:window", 2, time.Second)
	assert.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestAdaptiveLimiter_FallsBackToMemory(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	cleanup()

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	result, err := limiter.Check(ctx, "test:fallback", 4, time.Minute)
	assert.NoError(t, err)
	assert.True(t, result.Allowed)

	_, err = limiter.Check(ctx, "test:fallback", 4, time.Minute)
	assert.NoError(t, err)

	result, err = limiter.Check(ctx, "test:fallback", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	_, err := limiter.Check(context.Background(), "k", 1, time.Minute)
	assert.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	limiter.Cleanup(time.Millisecond)
	limiter.mu.RLock()
	assert.Empty(t, limiter.buckets)
	limiter.mu.RUnlock()
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerUser:   config.RateLimitRule{Limit: 10, Window: "30s"},
		Whitelist: []int64{7},
	})

	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted(7))
	assert.False(t, rules.IsWhitelisted(8))

	limit, window, err := rules.GetPerUserLimit()
	assert.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 30*time.Second, window)

	_, _, err = NewRules(config.RateLimitConfig{PerUser: config.RateLimitRule{Limit: 1}}).GetPerUserLimit()
	assert.Error(t, err)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
