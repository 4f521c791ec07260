// Package cache provides byte-level caches shared by the registry clients
// and the status aggregator.
//
// Registry responses are cached with a TTL. Aggregation summaries are keyed
// by scan ID; a completed scan never changes, so those entries are stored
// without expiry.
//
// Backends:
//   - [NullCache]: caching disabled
//   - [FileCache]: single-host deployments and the CLI
//   - [RedisCache]: shared across API replicas
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values by key.
type Cache interface {
	// Get returns the value for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
