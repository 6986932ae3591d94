package tenant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"rustok/internal/constants"
)

// RedisCache is the shared cache backend. TTLs are fixed, not sliding,
// to bound staleness across instances.
type RedisCache struct {
	client      *redis.Client
	ttl         time.Duration
	negativeTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl, negativeTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, negativeTTL: negativeTTL}
}

func (c *RedisCache) Get(ctx context.Context, key LookupKey) (*Snapshot, CacheResult, error) {
	raw, err := c.client.Get(ctx, key.String()).Result()
	if err == redis.Nil {
		return nil, CacheMiss, nil
	}
	if err != nil {
		return nil, CacheMiss, err
	}

	if raw == constants.NegativeCacheSentinel {
		return nil, CacheNegativeHit, nil
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten by
		// the next fetch.
		return nil, CacheMiss, nil
	}
	return &snap, CacheHit, nil
}

func (c *RedisCache) SetSnapshot(ctx context.Context, key LookupKey, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key.String(), raw, c.ttl).Err()
}

func (c *RedisCache) SetNegative(ctx context.Context, key LookupKey) error {
	return c.client.Set(ctx, key.String(), constants.NegativeCacheSentinel, c.negativeTTL).Err()
}

func (c *RedisCache) Delete(ctx context.Context, keys ...LookupKey) error {
	if len(keys) == 0 {
		return nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}
	return c.client.Del(ctx, raw...).Err()
}

func (c *RedisCache) Close() error { return nil }
