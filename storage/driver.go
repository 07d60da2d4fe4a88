package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("storage: key not found")

// ErrStorage wraps every backend failure (connection, query, timeout).
var ErrStorage = errors.New("storage error")

// Driver is the key-value capability consumed by the session store.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists live keys that start with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Swapper is implemented by drivers that can replace a value atomically.
//
// CompareAndSwap stores next under key only if the current value equals prev
// byte for byte. It reports false, with a nil error, when the key is missing
// or holds a different value.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)
}

// Closer is implemented by drivers holding resources (connections, files,
// background loops).
type Closer interface {
	Close() error
}
