package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries in Redis. It is safe for concurrent use and can
// be shared by several API replicas.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to addr and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value. redis.Nil is reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set stores a value. A ttl of 0 keeps the key until it is deleted.
func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// clearBatch is the SCAN page size and DEL batch size of Clear.
const clearBatch = 500

// Clear deletes every key matching one of patterns, found with SCAN, and
// returns how many were removed.
func (c *RedisCache) Clear(ctx context.Context, patterns ...string) (int, error) {
	count := 0
	del := func(keys []string) error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.client.Del(ctx, keys...).Result()
		count += int(n)
		return err
	}
	for _, pattern := range patterns {
		iter := c.client.Scan(ctx, 0, pattern, clearBatch).Iterator()
		batch := make([]string, 0, clearBatch)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == clearBatch {
				if err := del(batch); err != nil {
					return count, err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return count, err
		}
		if err := del(batch); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
