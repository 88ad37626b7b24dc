// Package dedup implements a Redis-backed seen-message guard for queue
// consumers.
//
// The database-level idempotence checks (run upsert, count-existing item
// guard, terminal item statuses) make redelivery safe on their own; this
// guard just short-circuits duplicate deliveries before they spend work.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard marks message ids as seen with a bounded TTL.
type Guard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewGuard creates a Guard. The prefix namespaces keys per stage so the
// same message id can legitimately pass through different stages.
func NewGuard(client *redis.Client, prefix string, ttl time.Duration) *Guard {
	return &Guard{client: client, prefix: prefix, ttl: ttl}
}

// FirstDelivery records the message id and reports whether this is the
// first time it has been seen. A Redis failure is returned as an error so
// the caller can choose to proceed (the DB guards still hold) or back off.
func (g *Guard) FirstDelivery(ctx context.Context, messageID string) (bool, error) {
	key := fmt.Sprintf("%s:msg:%s", g.prefix, messageID)
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx %s: %w", key, err)
	}
	return ok, nil
}

// Forget clears a message id so a retry can reprocess it. Used when a
// handler fails after claiming the id.
func (g *Guard) Forget(ctx context.Context, messageID string) error {
	key := fmt.Sprintf("%s:msg:%s", g.prefix, messageID)
	if err := g.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("dedup del %s: %w", key, err)
	}
	return nil
}
