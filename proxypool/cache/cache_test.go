package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/proxypool/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingProducer struct {
	calls atomic.Int32
}

func (p *countingProducer) Produce(ctx context.Context, key string) ([]byte, error) {
	n := p.calls.Add(1)
	return []byte(fmt.Sprintf("%s#%d", key, n)), nil
}

// failingBackend fails every operation, like an unwritable directory.
type failingBackend struct{}

func (failingBackend) Load(string) (storage.Entry, bool, error) {
	return storage.Entry{}, false, fmt.Errorf("disk on fire")
}
func (failingBackend) Store(string, storage.Entry) error { return fmt.Errorf("disk on fire") }
func (failingBackend) Delete(string) error              { return fmt.Errorf("disk on fire") }
func (failingBackend) Keys() ([]string, error)          { return nil, fmt.Errorf("disk on fire") }

func newTestCache(t *testing.T) (*Cache, *countingProducer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := &countingProducer{}
	fb, err := storage.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error: %v", err)
	}
	return New(fb, 300*time.Second, p.Produce, WithClock(clock.Now)), p, clock
}

func TestCache_HitWithinTTL(t *testing.T) {
	c, p, clock := newTestCache(t)
	ctx := context.Background()

	first, err := c.Get(ctx, "http://example.test/")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	clock.Advance(299 * time.Second)
	second, err := c.Get(ctx, "http://example.test/")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if string(first) != string(second) {
		t.Errorf("values differ within TTL: %q vs %q", first, second)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("producer called %d times, want 1", got)
	}
}

func TestCache_ExpiryInvokesProducerOnceAndRefreshes(t *testing.T) {
	c, p, clock := newTestCache(t)
	ctx := context.Background()

	c.Get(ctx, "k")
	clock.Advance(300 * time.Second)

	v, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(v) != "k#2" {
		t.Errorf("value after expiry = %q, want k#2", v)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("producer called %d times, want 2", got)
	}

	// refreshed entry is good for another full TTL
	clock.Advance(299 * time.Second)
	if v, _ := c.Get(ctx, "k"); string(v) != "k#2" {
		t.Errorf("refreshed value = %q, want k#2", v)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("producer called %d times after refresh, want 2", got)
	}
}

func TestCache_DistinctKeys(t *testing.T) {
	c, p, _ := newTestCache(t)
	ctx := context.Background()

	a, _ := c.Get(ctx, "a")
	b, _ := c.Get(ctx, "b")
	if string(a) == string(b) {
		t.Errorf("distinct keys share a value: %q", a)
	}
	if got := p.calls.Load(); got != 2 {
		t.Errorf("producer called %d times, want 2", got)
	}
}

func TestCache_ProducerErrorNotCached(t *testing.T) {
	calls := 0
	producer := func(ctx context.Context, key string) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, herrors.Network("boom")
		}
		return []byte("ok"), nil
	}
	c := New(storage.NewMemoryBackend(), time.Minute, producer)

	if _, err := c.Get(context.Background(), "k"); !herrors.Is(err, herrors.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	v, err := c.Get(context.Background(), "k")
	if err != nil || string(v) != "ok" {
		t.Fatalf("second Get() = %q, %v", v, err)
	}
}

func TestCache_StorageFailureIsFatal(t *testing.T) {
	p := &countingProducer{}
	c := New(failingBackend{}, time.Minute, p.Produce)

	_, err := c.Get(context.Background(), "k")
	if !herrors.Is(err, herrors.ErrCacheStorage) {
		t.Fatalf("expected ErrCacheStorage, got %v", err)
	}
	if got := p.calls.Load(); got != 0 {
		t.Errorf("producer should not run when storage is broken, ran %d times", got)
	}
}

func TestCache_ConcurrentMissCallsProducerOnce(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	producer := func(ctx context.Context, key string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("page"), nil
	}
	c := New(storage.NewMemoryBackend(), time.Minute, producer)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "same")
			if err != nil {
				t.Errorf("Get() error: %v", err)
			}
			results[i] = string(v)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, r := range results {
		if r != "page" {
			t.Errorf("result %d = %q", i, r)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("producer called %d times for one key, want 1", got)
	}
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	producer := func(ctx context.Context, key string) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return []byte("page"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := New(storage.NewMemoryBackend(), time.Minute, producer)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, "same")
		firstErr <- err
	}()
	<-started

	type result struct {
		value []byte
		err   error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background(), "same")
		second <- result{v, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	close(release)
	res := <-second
	if res.err != nil {
		t.Fatalf("caller with live context failed: %v", res.err)
	}
	if string(res.value) != "page" {
		t.Errorf("value = %q, want page", res.value)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("producer called %d times, want 1", got)
	}
}

func TestCache_Purge(t *testing.T) {
	c, _, clock := newTestCache(t)
	ctx := context.Background()

	c.Get(ctx, "old")
	clock.Advance(200 * time.Second)
	c.Get(ctx, "fresh")
	clock.Advance(150 * time.Second)

	removed, err := c.Purge()
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Purge() removed %d, want 1", removed)
	}

	keys, _ := c.backend.Keys()
	if len(keys) != 1 || keys[0] != Key("fresh") {
		t.Errorf("remaining keys = %v, want [%s]", keys, Key("fresh"))
	}
}

func TestKey_Deterministic(t *testing.T) {
	if Key("http://a/") != Key("http://a/") {
		t.Error("Key is not deterministic")
	}
	if Key("http://a/") == Key("http://b/") {
		t.Error("Key collides for different URLs")
	}
	if len(Key("x")) != 16 {
		t.Errorf("Key length = %d, want 16", len(Key("x")))
	}
}
