package loadercache

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/touge-service-manager-go/log"
	"github.com/mpapenbr/touge-service-manager-go/pkg/utils/cache"
)

type (
	Option[K comparable, V any] func(*config[K, V])
	LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

	item[T any] struct {
		data    T
		expires time.Time
	}
	config[K comparable, V any] struct {
		expiration time.Duration
		loader     LoaderFunc[K, V]
		now        func() time.Time
		l          *log.Logger
	}
	loaderCache[K comparable, V any] struct {
		mutex  sync.Mutex
		items  map[K]item[V]
		config *config[K, V]
	}
)

func WithExpiration[K comparable, V any](expiration time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.expiration = expiration
	}
}

func WithLoader[K comparable, V any](lf LoaderFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.loader = lf
	}
}

func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *config[K, V]) {
		c.now = now
	}
}

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.l = arg
	}
}

func New[K comparable, V any](opts ...Option[K, V]) cache.Cache[K, V] {
	c := &config[K, V]{
		expiration: 5 * time.Minute,
		now:        time.Now,
		l:          log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &loaderCache[K, V]{
		items:  make(map[K]item[V]),
		config: c,
	}
}

// Get returns the cached value for key. Missing or expired entries are
// loaded while holding the lock, so concurrent callers share one load.
func (c *loaderCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if entry, ok := c.items[key]; ok {
		if c.config.now().Before(entry.expires) {
			return entry.data, nil
		}
		delete(c.items, key)
	}
	return c.load(ctx, key)
}

func (c *loaderCache[K, V]) load(ctx context.Context, key K) (V, error) {
	var zero V
	if c.config.loader == nil {
		return zero, cache.ErrCacheMiss
	}
	v, err := c.config.loader(ctx, key)
	c.config.l.Debug("load", log.Any("key", key))
	if err != nil {
		c.config.l.Warn("error loading entry", log.Any("key", key), log.ErrorField(err))
		return zero, err
	}
	c.items[key] = item[V]{data: v, expires: c.config.now().Add(c.config.expiration)}
	return v, nil
}

func (c *loaderCache[K, V]) Invalidate(key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
	c.config.l.Debug("invalidate",
		log.Any("key", key),
		log.Int("remaining", len(c.items)))
}

func (c *loaderCache[K, V]) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	clear(c.items)
}
