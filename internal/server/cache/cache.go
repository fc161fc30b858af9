// Package cache defines the short-TTL cache contract used for block-status
// and suspicion-score memoization, with Redis and in-memory implementations.
// Absence of a cache degrades latency, never correctness: callers fall back
// to the persistent store on a miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a get/set-with-TTL/delete store over opaque string keys.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
