// Package cache provides the storage tiers behind the translation cache.
package cache

import (
	"context"
	"time"
)

// Distributed is a shared key-value store with TTL support. It is optional
// infrastructure: callers must treat every error as a cache miss.
type Distributed interface {
	// Get returns the value for key. A missing key is ("", false, nil).
	Get(ctx context.Context, key string) (string, bool, error)

	// SetWithTTL stores value under key; ttl <= 0 means no expiration.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// DeleteKeys removes every key matching a glob pattern and returns how many were removed.
	DeleteKeys(ctx context.Context, pattern string) (int, error)

	// ListKeys returns every key matching a glob pattern.
	ListKeys(ctx context.Context, pattern string) ([]string, error)
}
