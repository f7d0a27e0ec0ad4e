package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "webhook:seen:"

// Deduper suppresses duplicate webhook deliveries across all API
// processes. Providers redeliver on slow responses, so the first process
// to mark an ID wins and the rest skip.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper creates a webhook deduper with the given retention window.
func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{client: client, ttl: ttl}
}

// Seen marks the webhook ID and reports whether it was already marked.
func (d *Deduper) Seen(ctx context.Context, webhookID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupKeyPrefix+webhookID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check webhook id: %w", err)
	}
	return !ok, nil
}
