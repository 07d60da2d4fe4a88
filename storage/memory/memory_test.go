package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/MrEthical07/goSession/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDriver(t *testing.T) (*Driver, *fakeClock) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return New(logger, WithClock(clock.Now)), clock
}

func TestGetSetRemove(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	if _, err := d.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := d.Set(ctx, "a", []byte("one"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := d.Get(ctx, "a")
	if err != nil || string(got) != "one" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	got[0] = 'X'
	again, _ := d.Get(ctx, "a")
	if string(again) != "one" {
		t.Fatalf("stored value aliased caller slice: %q", again)
	}

	if err := d.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := d.Remove(ctx, "a"); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := d.Get(ctx, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	d, clock := newTestDriver(t)
	ctx := context.Background()

	_ = d.Set(ctx, "sess:1", []byte("v"), time.Minute)
	_ = d.Set(ctx, "sess:2", []byte("v"), 0)

	clock.Advance(time.Minute)

	if _, err := d.Get(ctx, "sess:1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected expired key to be missing, got %v", err)
	}
	keys, _ := d.Keys(ctx, "sess:")
	if len(keys) != 1 || keys[0] != "sess:2" {
		t.Fatalf("Keys = %v, want [sess:2]", keys)
	}
	if n := d.Purge(); n != 1 {
		t.Fatalf("Purge removed %d, want 1", n)
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
}

func TestKeysPrefix(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	for _, k := range []string{"sess:a", "sess:b", "other:c"} {
		_ = d.Set(ctx, k, []byte("v"), time.Hour)
	}
	keys, err := d.Keys(ctx, "sess:")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "sess:a" || keys[1] != "sess:b" {
		t.Fatalf("Keys = %v", keys)
	}
}

func TestCompareAndSwap(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	ok, err := d.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), time.Minute)
	if err != nil || ok {
		t.Fatalf("CAS on missing key = %v, %v", ok, err)
	}

	_ = d.Set(ctx, "k", []byte("a"), time.Minute)
	if ok, _ := d.CompareAndSwap(ctx, "k", []byte("x"), []byte("b"), time.Minute); ok {
		t.Fatal("CAS with stale prev should fail")
	}
	if ok, _ := d.CompareAndSwap(ctx, "k", []byte("a"), []byte("b"), time.Minute); !ok {
		t.Fatal("CAS with current prev should succeed")
	}
	got, _ := d.Get(ctx, "k")
	if string(got) != "b" {
		t.Fatalf("value after CAS = %q", got)
	}
}

func TestConcurrentCompareAndSwapSingleWinner(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()
	_ = d.Set(ctx, "k", []byte("v0"), time.Minute)

	const workers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := d.CompareAndSwap(ctx, "k", []byte("v0"), []byte{byte(i)}, time.Minute)
			if err != nil {
				t.Errorf("CAS: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", wins)
	}
}

func TestStartClose(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	d := New(logger, WithCleanupInterval(time.Millisecond))
	d.Start(context.Background())
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
