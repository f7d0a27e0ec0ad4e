package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), mr
}

func TestAllow_UpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "emails:user:1", 5, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, "event %d should be within the limit", i+1)
	}

	ok, err := limiter.Allow(ctx, "emails:user:1", 5, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "sixth event must be rejected")
}

func TestAllow_RejectionRecordsNothing(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "k", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	// Rejected events must not extend the window.
	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "k", 1, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "emails:user:1", 1, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = limiter.Allow(ctx, "emails:user:1", 1, time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = limiter.Allow(ctx, "emails:user:2", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "another user's budget is untouched")
}

func TestConsume_TokenBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	ok, err := limiter.Consume(ctx, "llm:tokens", 600, 1000, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Consume(ctx, "llm:tokens", 300, 1000, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Consume(ctx, "llm:tokens", 200, 1000, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "1100 tokens exceed the 1000 budget")
}

func TestConsume_WindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	ctx := context.Background()

	ok, err := limiter.Consume(ctx, "llm:tokens", 1000, 1000, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Consume(ctx, "llm:tokens", 1, 1000, time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Hour)

	ok, err = limiter.Consume(ctx, "llm:tokens", 500, 1000, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "budget resets after the window expires")
}
