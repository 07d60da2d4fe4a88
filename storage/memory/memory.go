// Package memory provides an in-process storage.Driver with per-key TTL and a
// background cleanup loop.
package memory

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/goSession/storage"
)

const defaultCleanupInterval = time.Minute

var (
	_ storage.Driver  = (*Driver)(nil)
	_ storage.Swapper = (*Driver)(nil)
	_ storage.Closer  = (*Driver)(nil)
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Driver stores values in a map guarded by a RWMutex.
type Driver struct {
	log logrus.FieldLogger
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	interval    time.Duration
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock overrides the time source used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// WithCleanupInterval sets how often expired entries are purged.
func WithCleanupInterval(interval time.Duration) Option {
	return func(d *Driver) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// New creates a Driver. Call Start to run the cleanup loop.
func New(log logrus.FieldLogger, opts ...Option) *Driver {
	d := &Driver{
		log:         log.WithField("component", "memory_storage"),
		now:         time.Now,
		entries:     make(map[string]entry, 1024),
		interval:    defaultCleanupInterval,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the cleanup goroutine. It stops when ctx is cancelled or Close
// is called.
func (d *Driver) Start(ctx context.Context) {
	go d.cleanupLoop(ctx)
}

// Close stops the cleanup goroutine if it was started.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopCleanup)
	})
	return nil
}

func (d *Driver) cleanupLoop(ctx context.Context) {
	defer close(d.cleanupDone)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCleanup:
			return
		case <-ticker.C:
			if n := d.Purge(); n > 0 {
				d.log.WithField("removed", n).Debug("Purged expired entries")
			}
		}
	}
}

// Purge removes every expired entry and returns how many were removed.
func (d *Driver) Purge() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, e := range d.entries {
		if e.expired(now) {
			delete(d.entries, key)
			removed++
		}
	}
	return removed
}

// Get returns a copy of the stored value.
func (d *Driver) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	e, ok := d.entries[key]
	d.mu.RUnlock()

	if !ok || e.expired(d.now()) {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(e.value), nil
}

// Set stores a copy of value.
func (d *Driver) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = d.now().Add(ttl)
	}

	d.mu.Lock()
	d.entries[key] = e
	d.mu.Unlock()
	return nil
}

// Remove deletes key.
func (d *Driver) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.entries, key)
	d.mu.Unlock()
	return nil
}

// Keys lists unexpired keys with the given prefix.
func (d *Driver) Keys(_ context.Context, prefix string) ([]string, error) {
	now := d.now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.entries))
	for key, e := range d.entries {
		if e.expired(now) || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// CompareAndSwap replaces the value under key when it still equals prev.
func (d *Driver) CompareAndSwap(_ context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[key]
	if !ok || e.expired(now) || !bytes.Equal(e.value, prev) {
		return false, nil
	}

	updated := entry{value: bytes.Clone(next)}
	if ttl > 0 {
		updated.expiresAt = now.Add(ttl)
	}
	d.entries[key] = updated
	return true, nil
}

// Len returns the number of stored entries, expired or not.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
