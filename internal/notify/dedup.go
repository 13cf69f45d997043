package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduper claims an idempotency key. First returns true only for the first
// caller to claim key within the window. Release drops a claim whose work
// failed so a later run can retry it.
type Deduper interface {
	First(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisDeduper struct {
	redis  *redis.Client
	window time.Duration
}

func NewRedisDeduper(client *redis.Client, window time.Duration) *RedisDeduper {
	return &RedisDeduper{redis: client, window: window}
}

func (d *RedisDeduper) First(ctx context.Context, key string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, key, "1", d.window).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// WarningKey identifies one expiry warning for one subscription on one day.
func WarningKey(day time.Time, subscriptionID string, daysLeft int) string {
	return fmt.Sprintf("subscription:warning:%s:%s:%d", day.Format("2006-01-02"), subscriptionID, daysLeft)
}
