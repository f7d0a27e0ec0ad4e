// Package ratelimit implements shared per-key counters with sliding or
// fixed time windows. Counters live in Redis so every worker and API
// process sees the same totals; tests back the same client with
// miniredis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Limiter tracks event counts per key.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow records one event under key and reports whether the sliding
// window still had room. Events older than the window are discarded
// first; when the limit is already reached nothing is recorded.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", cutoff)
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to count window %q: %w", key, err)
	}

	if countCmd.Val() >= int64(limit) {
		return false, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to record event %q: %w", key, err)
	}
	return true, nil
}

// Consume adds n units to a fixed-window counter and reports whether the
// total stays at or under the limit. The window starts with the first
// event and expires as a whole; used for token budgets where per-event
// weights matter more than exact window edges.
func (l *Limiter) Consume(ctx context.Context, key string, n, limit int, window time.Duration) (bool, error) {
	total, err := l.client.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment %q: %w", key, err)
	}
	if total == int64(n) {
		// First event in this window; arm the expiry.
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("failed to expire %q: %w", key, err)
		}
	}
	if total > int64(limit) {
		return false, nil
	}
	return true, nil
}
