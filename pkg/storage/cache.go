package storage

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vjranagit/promdash/pkg/types"
)

// QueryCache is an LRU cache of evaluated query results with a TTL.
type QueryCache struct {
	capacity int
	ttl      time.Duration
	mu       sync.Mutex
	cache    map[string]*cacheEntry
	lru      *list.List
}

type cacheEntry struct {
	key       string
	result    *types.QueryResult
	timestamp time.Time
	element   *list.Element
}

// NewQueryCache creates a cache holding up to capacity entries.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		ttl:      ttl,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
	}
}

// Get retrieves a cached result, expiring stale entries.
func (qc *QueryCache) Get(key string) (*types.QueryResult, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	entry, exists := qc.cache[key]
	if !exists {
		return nil, false
	}
	if time.Since(entry.timestamp) > qc.ttl {
		qc.removeLocked(key)
		return nil, false
	}

	qc.lru.MoveToFront(entry.element)
	return entry.result, true
}

// Put stores a result, evicting the least recently used entry when full.
func (qc *QueryCache) Put(key string, result *types.QueryResult) {
	qc.mu.Lock()
	defer qc.mu.Unlock()

	if entry, exists := qc.cache[key]; exists {
		entry.result = result
		entry.timestamp = time.Now()
		qc.lru.MoveToFront(entry.element)
		return
	}

	entry := &cacheEntry{key: key, result: result, timestamp: time.Now()}
	entry.element = qc.lru.PushFront(entry)
	qc.cache[key] = entry

	if qc.lru.Len() > qc.capacity {
		if oldest := qc.lru.Back(); oldest != nil {
			qc.removeLocked(oldest.Value.(*cacheEntry).key)
		}
	}
}

func (qc *QueryCache) removeLocked(key string) {
	if entry, exists := qc.cache[key]; exists {
		qc.lru.Remove(entry.element)
		delete(qc.cache, key)
	}
}

// Clear drops all entries.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.cache = make(map[string]*cacheEntry)
	qc.lru = list.New()
}

// Size returns the number of cached entries.
func (qc *QueryCache) Size() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.cache)
}

// CachedStore wraps a Store with query-result caching. Writes invalidate
// the cache wholesale; range and instant evaluations are keyed
// separately so table and graph views never collide.
type CachedStore struct {
	inner Store
	cache *QueryCache

	mu     sync.Mutex
	hits   uint64
	misses uint64
}

// NewCachedStore creates a caching wrapper around inner.
func NewCachedStore(inner Store, capacity int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner: inner,
		cache: NewQueryCache(capacity, ttl),
	}
}

// Write invalidates the cache and passes through.
func (cs *CachedStore) Write(ctx context.Context, req *types.WriteRequest) error {
	cs.cache.Clear()
	return cs.inner.Write(ctx, req)
}

// QueryRange implements Store.QueryRange with caching.
func (cs *CachedStore) QueryRange(ctx context.Context, q *types.RangeQuery) (*types.QueryResult, error) {
	key := fmt.Sprintf("range/%s/%s/%d/%d/%d",
		q.TenantID, q.Query, q.Start.Unix(), q.End.Unix(), int64(q.Step.Seconds()))
	if result, ok := cs.cache.Get(key); ok {
		cs.count(true)
		return result, nil
	}
	cs.count(false)

	result, err := cs.inner.QueryRange(ctx, q)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(key, result)
	return result, nil
}

// QueryInstant implements Store.QueryInstant with caching.
func (cs *CachedStore) QueryInstant(ctx context.Context, q *types.InstantQuery) (*types.QueryResult, error) {
	key := fmt.Sprintf("instant/%s/%s/%d", q.TenantID, q.Query, q.Time.Unix())
	if result, ok := cs.cache.Get(key); ok {
		cs.count(true)
		return result, nil
	}
	cs.count(false)

	result, err := cs.inner.QueryInstant(ctx, q)
	if err != nil {
		return nil, err
	}
	cs.cache.Put(key, result)
	return result, nil
}

// Close closes the underlying store.
func (cs *CachedStore) Close() error {
	return cs.inner.Close()
}

func (cs *CachedStore) count(hit bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if hit {
		cs.hits++
	} else {
		cs.misses++
	}
}

// HitRate returns the cache hit rate as a percentage.
func (cs *CachedStore) HitRate() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	total := cs.hits + cs.misses
	if total == 0 {
		return 0
	}
	return float64(cs.hits) / float64(total) * 100
}
