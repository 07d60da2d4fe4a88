package redisstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/storage"
)

func newDriverTest(t *testing.T) (*Driver, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestGetMissIsNotFound(t *testing.T) {
	d, _, done := newDriverTest(t)
	defer done()

	if _, err := d.Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAppliesTTL(t *testing.T) {
	d, mr, done := newDriverTest(t)
	defer done()
	ctx := context.Background()

	if err := d.Set(ctx, "sess:a", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("sess:a"); ttl != time.Minute {
		t.Fatalf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(time.Minute + time.Second)

	if _, err := d.Get(ctx, "sess:a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expired key to be missing, got %v", err)
	}
}

func TestRemoveIdempotent(t *testing.T) {
	d, _, done := newDriverTest(t)
	defer done()
	ctx := context.Background()

	_ = d.Set(ctx, "k", []byte("v"), 0)
	if err := d.Remove(ctx, "k"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := d.Remove(ctx, "k"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestKeysScansPrefix(t *testing.T) {
	d, _, done := newDriverTest(t)
	defer done()
	ctx := context.Background()

	for _, k := range []string{"sess:1", "sess:2", "sess:3", "other:1"} {
		if err := d.Set(ctx, k, []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	keys, err := d.Keys(ctx, "sess:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 3 || keys[0] != "sess:1" || keys[2] != "sess:3" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestCompareAndSwap(t *testing.T) {
	d, mr, done := newDriverTest(t)
	defer done()
	ctx := context.Background()

	ok, err := d.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), time.Minute)
	if err != nil || ok {
		t.Fatalf("CAS on missing key = %v, %v", ok, err)
	}

	_ = d.Set(ctx, "k", []byte("a"), time.Minute)
	if ok, err := d.CompareAndSwap(ctx, "k", []byte("stale"), []byte("b"), time.Minute); err != nil || ok {
		t.Fatalf("CAS with stale prev = %v, %v", ok, err)
	}
	if ok, err := d.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), 2*time.Minute); err != nil || !ok {
		t.Fatalf("CAS with current prev = %v, %v", ok, err)
	}

	got, _ := d.Get(ctx, "k")
	if string(got) != "b" {
		t.Fatalf("value after CAS = %q", got)
	}
	if ttl := mr.TTL("k"); ttl != 2*time.Minute {
		t.Fatalf("TTL after CAS = %v", ttl)
	}
}

func TestUnavailableWrapsErrStorage(t *testing.T) {
	d, mr, done := newDriverTest(t)
	defer done()
	mr.Close()

	if err := d.Set(context.Background(), "k", []byte("v"), 0); !errors.Is(err, storage.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if _, err := d.Get(context.Background(), "k"); !errors.Is(err, storage.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Fatalf("escapeGlob = %q", got)
	}
}
