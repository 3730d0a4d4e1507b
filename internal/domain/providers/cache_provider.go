package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider stores introspected schemas and rate-limit state shared between instances.
type CacheProvider interface {
	// Get returns ErrCacheMiss, possibly wrapped, when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Counter is implemented by caches that can count atomically. The first increment of a key
// starts its window; Increment returns the new count and the time left in the window.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
