// Package marketdata is the single in-process cache fronting every
// upstream fetcher with per-key TTL, concurrent fan-out, and per-source
// failure isolation (spec.md §4.2).
package marketdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the upstream contract a provider implements for one source.
type Fetcher interface {
	Fetch(ctx context.Context, param string) (any, error)
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Cache is the process-wide (source, key) -> (value, fetched_at) mapping
// described in spec.md §4.2.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Key]entry
	ttls     map[Source]time.Duration
	fetchers map[Source]Fetcher
	timeout  time.Duration
	group    singleflight.Group
	logger   *zap.Logger
}

// New creates an empty Cache. ttls maps each recognized Source to its
// configured TTL; timeout bounds each individual upstream fetch.
func New(ttls map[Source]time.Duration, timeout time.Duration, logger *zap.Logger) *Cache {
	return &Cache{
		entries:  make(map[Key]entry),
		ttls:     ttls,
		fetchers: make(map[Source]Fetcher),
		timeout:  timeout,
		logger:   logger,
	}
}

// Register binds a Fetcher implementation to a Source.
func (c *Cache) Register(source Source, fetcher Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchers[source] = fetcher
}

// Get resolves a single key, refreshing it if its TTL has elapsed. A
// refresh for a given key is single-flight: concurrent callers for the
// same key share one in-flight fetch (spec.md §8 property 10).
func (c *Cache) Get(ctx context.Context, key Key) Result {
	if res, fresh := c.peek(key); fresh {
		return res
	}

	value, err, _ := c.group.Do(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		c.mu.RLock()
		fetcher, ok := c.fetchers[key.Source]
		c.mu.RUnlock()
		if !ok {
			return nil, errNoFetcher
		}

		v, err := fetcher.Fetch(fetchCtx, key.Param)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = entry{value: v, fetchedAt: time.Now()}
		c.mu.Unlock()
		return v, nil
	})

	if err == nil {
		return Fresh(value)
	}

	if c.logger != nil {
		c.logger.Warn("upstream fetch failed, serving cached state",
			zap.String("key", key.String()), zap.Error(err))
	}

	c.mu.RLock()
	e, hadPrior := c.entries[key]
	c.mu.RUnlock()
	if !hadPrior {
		return AbsentResult
	}
	return Stale(e.value, time.Since(e.fetchedAt))
}

// peek returns the cached entry if it exists and is still within its TTL.
func (c *Cache) peek(key Key) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	ttl, ok := c.ttls[key.Source]
	if !ok {
		ttl = 0
	}
	if time.Since(e.fetchedAt) <= ttl {
		return Fresh(e.value), true
	}
	return Result{}, false
}

// GetAll resolves a set of keys concurrently: fetches for distinct keys
// run in parallel goroutines (spec.md §4.2).
func (c *Cache) GetAll(ctx context.Context, keys []Key) map[Key]Result {
	results := make(map[Key]Result, len(keys))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, k := range keys {
		wg.Add(1)
		go func(k Key) {
			defer wg.Done()
			r := c.Get(ctx, k)
			mu.Lock()
			results[k] = r
			mu.Unlock()
		}(k)
	}
	wg.Wait()
	return results
}

// Put seeds or overwrites a cache entry directly, stamping it as fetched
// now for TTL purposes.
func (c *Cache) Put(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, fetchedAt: time.Now()}
}
