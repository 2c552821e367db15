package inmem

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisClient stores revoked ids as redis keys that expire on their own.
func NewRedisClient(r *redis.Client) Client {
	return &redisClient{redis: r, now: time.Now}
}

func (c *redisClient) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	return c.redis.Set(ctx, keyPrefix+id, until.Unix(), ttl).Err()
}

func (c *redisClient) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := c.redis.Exists(ctx, keyPrefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Prune is a no-op, redis expires the keys itself.
func (c *redisClient) Prune(context.Context, time.Time) (int, error) {
	return 0, nil
}
