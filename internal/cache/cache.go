// Package cache implements a read-through cache with stale-while-revalidate
// semantics. Entries younger than TTL are served as-is; entries between TTL
// and MaxAge are served immediately while a background refresh runs; older
// entries force a synchronous fetch. Concurrent fetches for the same key are
// collapsed into one.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 30 * time.Second

type Config struct {
	TTL    time.Duration
	MaxAge time.Duration

	// RefreshTimeout bounds background refresh fetches so a hung fetcher
	// cannot hold the in-flight slot forever.
	RefreshTimeout time.Duration
}

type entry[T any] struct {
	data      T
	timestamp time.Time
	version   int64
}

// Cache is a process-local read-through cache for a single payload type.
// Instances are constructed explicitly and injected; state is rebuilt from
// the store on cold start.
type Cache[T any] struct {
	ttl            time.Duration
	maxAge         time.Duration
	refreshTimeout time.Duration

	mu            sync.RWMutex
	entries       map[string]entry[T]
	globalVersion int64

	group   singleflight.Group
	log     *zap.Logger
	metrics *Metrics

	now func() time.Time
}

type Stats struct {
	Size          int
	GlobalVersion int64
	Keys          []string
}

// New validates that TTL is shorter than MaxAge and returns a ready cache.
// metrics may be nil.
func New[T any](cfg Config, log *zap.Logger, metrics *Metrics) (*Cache[T], error) {
	if cfg.TTL <= 0 || cfg.MaxAge <= 0 {
		return nil, errors.New("cache: ttl and max age must be positive")
	}
	if cfg.TTL >= cfg.MaxAge {
		return nil, errors.New("cache: ttl must be shorter than max age")
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Cache[T]{
		ttl:            cfg.TTL,
		maxAge:         cfg.MaxAge,
		refreshTimeout: cfg.RefreshTimeout,
		entries:        make(map[string]entry[T]),
		log:            log,
		metrics:        metrics,
		now:            time.Now,
	}, nil
}

// Get returns the cached payload for key or fetches it. With forceRefresh
// the cached payload is never used as the return value, but a successful
// fetch still updates the entry. A synchronous fetch error propagates to the
// caller; a background refresh error is logged and swallowed.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch func(ctx context.Context) (T, error), forceRefresh bool) (T, error) {
	if forceRefresh {
		return c.fetchShared(ctx, key, fetch)
	}

	ent, ok := c.lookup(key)
	if ok {
		age := c.now().Sub(ent.timestamp)

		if age < c.ttl {
			c.metrics.hit()
			c.log.Debug("cache hit", zap.String("key", key), zap.Duration("age", age))
			return ent.data, nil
		}

		if age < c.maxAge {
			c.metrics.staleHit()
			c.log.Info("cache stale, refreshing in background",
				zap.String("key", key), zap.Duration("age", age))
			go c.refresh(key, fetch)
			return ent.data, nil
		}
	}

	c.metrics.miss()
	return c.fetchShared(ctx, key, fetch)
}

// Invalidate removes the entry for key and bumps the global version counter.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.globalVersion++
}

// InvalidateAll clears every entry.
func (c *Cache[T]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
	c.globalVersion++
}

func (c *Cache[T]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return Stats{
		Size:          len(c.entries),
		GlobalVersion: c.globalVersion,
		Keys:          keys,
	}
}

func (c *Cache[T]) lookup(key string) (entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ent, ok := c.entries[key]
	return ent, ok
}

// fetchShared collapses concurrent fetches for the same key into a single
// fetcher invocation. singleflight clears the in-flight slot whether the
// fetch succeeds or fails, so a failed fetch never wedges the key.
func (c *Cache[T]) fetchShared(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, data)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache[T]) refresh(key string, fetch func(ctx context.Context) (T, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	if _, err := c.fetchShared(ctx, key, fetch); err != nil {
		c.metrics.refreshFailure()
		c.log.Warn("background cache refresh failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache[T]) store(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{
		data:      data,
		timestamp: c.now(),
		version:   c.globalVersion,
	}
}
