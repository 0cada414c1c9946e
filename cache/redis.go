package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanCount   = 100
	deleteBatch = 500
)

// RedisCache is a Redis-backed distributed cache tier.
type RedisCache struct {
	client *redis.Client
}

// RedisConfig holds configuration for the Redis cache.
type RedisConfig struct {
	URL         string        // Redis connection URL (e.g., "redis://localhost:6379/0")
	DialTimeout time.Duration // Connect and ping timeout (default: 2s)
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	opts.DialTimeout = timeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient creates a RedisCache from an existing Redis client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// SetWithTTL stores a value in Redis.
func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// ListKeys returns all keys matching pattern using SCAN.
func (c *RedisCache) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		page, next, err := c.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return keys, fmt.Errorf("redis scan %s: %w", pattern, err)
		}
		keys = append(keys, page...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// DeleteKeys removes all keys matching pattern.
func (c *RedisCache) DeleteKeys(ctx context.Context, pattern string) (int, error) {
	keys, err := c.ListKeys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		n, err := c.client.Del(ctx, keys[start:end]...).Result()
		deleted += int(n)
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
	}
	return deleted, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping tests the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Verify RedisCache implements Distributed
var _ Distributed = (*RedisCache)(nil)
