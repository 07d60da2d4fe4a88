// Package redisstore provides a storage.Driver backed by Redis through
// go-redis v9.
//
// Values are written with SET PX so Redis expires them natively; Keys walks the
// keyspace with SCAN and must not be used on request hot paths.
package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/storage"
)

const scanBatch = 1000

const compareAndSwapScript = `
local current = redis.call("GET", KEYS[1])
if not current or current ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`

var compareAndSwapLua = redis.NewScript(compareAndSwapScript)

var (
	_ storage.Driver  = (*Driver)(nil)
	_ storage.Swapper = (*Driver)(nil)
	_ storage.Closer  = (*Driver)(nil)
)

// Driver implements storage.Driver over a redis.UniversalClient.
type Driver struct {
	redis redis.UniversalClient
	owned bool
}

// New wraps an existing client. Close does not close a client passed here.
func New(client redis.UniversalClient) *Driver {
	return &Driver{redis: client}
}

// Open creates a client from backend settings and verifies connectivity.
func Open(ctx context.Context, b storage.Redis) (*Driver, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{
		Addrs:    b.Addrs,
		Username: b.Username,
		Password: b.Password,
		DB:       b.DB,
	}
	if b.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return &Driver{redis: client, owned: true}, nil
}

// Close releases the client when this driver created it.
func (d *Driver) Close() error {
	if !d.owned {
		return nil
	}
	return d.redis.Close()
}

// Get reads key; redis.Nil maps to storage.ErrNotFound.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := d.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return data, nil
}

// Set writes key with a PX expiry when ttl > 0.
func (d *Driver) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := d.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return nil
}

// Remove deletes key. Deleting a missing key is a no-op.
func (d *Driver) Remove(ctx context.Context, key string) error {
	if err := d.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return nil
}

// Keys scans for keys matching prefix*. This is O(n) over the keyspace.
func (d *Driver) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(prefix) + "*"
	var (
		cursor uint64
		out    []string
	)

	for {
		keys, next, err := d.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStorage, err)
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return out, nil
}

// CompareAndSwap runs a Lua script so the comparison and write are atomic.
func (d *Driver) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	res, err := compareAndSwapLua.Run(ctx, d.redis, []string{key}, prev, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return res == 1, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (d *Driver) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := d.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", storage.ErrStorage, err)
	}
	return time.Since(start), nil
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
