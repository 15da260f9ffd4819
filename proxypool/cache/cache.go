package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/proxypool/storage"
)

// DefaultTTL is the lifetime of a cached page.
const DefaultTTL = 300 * time.Second

// Producer computes the value for a key on a cache miss.
type Producer func(ctx context.Context, key string) ([]byte, error)

// Key returns the storage key for the given call argument.
func Key(arg string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(arg))
}

// Cache 将一个 Producer 包装为带 TTL 的记忆化调用。
// 过期条目只在被访问时删除; 生产者的错误不会被缓存。
type Cache struct {
	backend  storage.Backend
	ttl      time.Duration
	producer Producer
	now      func() time.Time
	group    singleflight.Group
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New wraps producer with a TTL cache persisted in backend.
func New(backend storage.Backend, ttl time.Duration, producer Producer, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		backend:  backend,
		ttl:      ttl,
		producer: producer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached value for arg, invoking the producer once if the entry
// is absent or expired. Concurrent misses for one arg share a single producer
// call; a caller whose ctx ends stops waiting without failing the others.
// Storage failures are returned as ErrCacheStorage and never degrade into a miss.
func (c *Cache) Get(ctx context.Context, arg string) ([]byte, error) {
	key := Key(arg)

	if value, ok, err := c.lookup(key); err != nil {
		return nil, err
	} else if ok {
		return value, nil
	}

	// 共享的生产者调用不随任何单个调用者取消
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// 另一个调用者可能刚刚写入了该条目
		if value, ok, err := c.lookup(key); err != nil || ok {
			return value, err
		}

		value, err := c.producer(flightCtx, arg)
		if err != nil {
			return nil, err
		}
		entry := storage.Entry{Value: value, ExpiresAt: c.now().Add(c.ttl)}
		if err := c.backend.Store(key, entry); err != nil {
			return nil, asStorageError(err)
		}

		l := logger.WithComponent("ProxyPool/Cache")
		l.Debug().Str("key", key).Str("arg", arg).Msg("Cache entry stored.")
		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, herrors.Network("wait for ", arg).Base(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Fetch makes a Cache usable wherever a page source is expected.
func (c *Cache) Fetch(ctx context.Context, url string) ([]byte, error) {
	return c.Get(ctx, url)
}

func (c *Cache) lookup(key string) ([]byte, bool, error) {
	entry, ok, err := c.backend.Load(key)
	if err != nil {
		return nil, false, asStorageError(err)
	}
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(c.now()) {
		if err := c.backend.Delete(key); err != nil {
			return nil, false, asStorageError(err)
		}
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// Purge removes every expired entry and returns how many were removed.
func (c *Cache) Purge() (int, error) {
	keys, err := c.backend.Keys()
	if err != nil {
		return 0, asStorageError(err)
	}

	now := c.now()
	removed := 0
	for _, key := range keys {
		entry, ok, err := c.backend.Load(key)
		if err != nil {
			return removed, asStorageError(err)
		}
		if !ok || !entry.Expired(now) {
			continue
		}
		if err := c.backend.Delete(key); err != nil {
			return removed, asStorageError(err)
		}
		removed++
	}

	l := logger.WithComponent("ProxyPool/Cache")
	l.Info().Int("scanned", len(keys)).Int("removed", removed).Msg("Cache purge finished.")
	return removed, nil
}

func asStorageError(err error) error {
	if herrors.Is(err, herrors.ErrCacheStorage) {
		return err
	}
	return herrors.CacheStorage("backend failure").Base(err)
}
