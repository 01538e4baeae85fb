package cache

import (
	"context"
	"time"

	redisx "github.com/iceos-ai/iceos/common/redis"
)

// RedisCache stores entries through the shared Redis client, giving node
// results cross-process visibility in production.
type RedisCache struct {
	client *redisx.Client
	prefix string
}

// NewRedisCache creates a Redis-backed cache under a key prefix
func NewRedisCache(client *redisx.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key)
	if err == redisx.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, string(value), ttl)
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Delete(ctx, c.prefix+key)
}

func (c *RedisCache) Close() error {
	return nil
}
