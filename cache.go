package sellergo

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// DefaultCacheTTL applies when neither the caller nor the entry specifies one.
const DefaultCacheTTL = 5 * time.Minute

// cacheSweepThreshold triggers an expired-entry sweep of a shard once it
// grows past this many entries, keeping the map bounded without per-call
// scanning cost.
const cacheSweepThreshold = 256

const cacheShardCount = 16

// CacheEntry is one memoized call result.
type CacheEntry struct {
	Value     *Response
	StoredAt  time.Time
	ExpiresAt time.Time
}

// ResponseCache memoizes idempotent call results by key with TTL expiry.
// It provides no in-flight deduplication on its own; pair it with the
// RequestBatcher when concurrent misses for the same key must collapse.
type ResponseCache struct {
	shards     []*cacheShard
	defaultTTL time.Duration
	now        func() time.Time
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewResponseCache creates a sharded in-memory cache with the given default
// TTL (DefaultCacheTTL when zero or negative).
func NewResponseCache(defaultTTL time.Duration) *ResponseCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultCacheTTL
	}
	shards := make([]*cacheShard, cacheShardCount)
	for i := range shards {
		shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return &ResponseCache{
		shards:     shards,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (c *ResponseCache) getShard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the live entry for key, expiring it on read when stale.
func (c *ResponseCache) Get(key string) (*Response, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.store[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}
	return entry.Value, true
}

// Set stores value under key with the given TTL (default TTL when zero or
// negative), superseding any previous entry.
func (c *ResponseCache) Set(key string, value *Response, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	shard := c.getShard(key)

	shard.mu.Lock()
	shard.store[key] = &CacheEntry{
		Value:     value,
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if len(shard.store) > cacheSweepThreshold {
		for k, e := range shard.store {
			if now.After(e.ExpiresAt) {
				delete(shard.store, k)
			}
		}
	}
	shard.mu.Unlock()
}

// Delete removes one entry.
func (c *ResponseCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.store, key)
	shard.mu.Unlock()
}

// Clear removes all entries.
func (c *ResponseCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the total number of stored entries, expired or not.
func (c *ResponseCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// Do returns the live cached value for key without invoking producer, or
// invokes producer and caches its result on success. Failures are never
// cached: the next call for the same key re-invokes producer.
func (c *ResponseCache) Do(ctx context.Context, key string, ttl time.Duration, producer func(context.Context) (*Response, error)) (*Response, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := producer(ctx)
	if err != nil {
		return nil, err
	}
	c.Set(key, value, ttl)
	return value, nil
}
