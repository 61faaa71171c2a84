package ic

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// CacheState represents the different states of a bounded cache.
type CacheState uint8

const (
	CacheStateUninitialized CacheState = iota
	CacheStateMonomorphic              // Single key cached
	CacheStatePolymorphic              // Several keys cached, up to the limit
	CacheStateMegamorphic              // Too many keys, callers fall back to the slow answer
)

func (s CacheState) String() string {
	switch s {
	case CacheStateUninitialized:
		return "UNINITIALIZED"
	case CacheStateMonomorphic:
		return "MONOMORPHIC"
	case CacheStatePolymorphic:
		return "POLYMORPHIC"
	case CacheStateMegamorphic:
		return "MEGAMORPHIC"
	}
	return fmt.Sprintf("CacheState(%d)", uint8(s))
}

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// cacheTable is immutable once published.
type cacheTable[K comparable, V any] struct {
	state   CacheState
	entries []cacheEntry[K, V]
}

// BoundedCache remembers answers for up to limit distinct keys and then
// goes megamorphic for good. Lookups are lock-free; updates copy the table
// under a mutex and publish it atomically.
type BoundedCache[K comparable, V any] struct {
	mu    sync.Mutex
	table atomic.Pointer[cacheTable[K, V]]
	limit int
	stats *Stats
}

// NewBoundedCache creates a cache holding at most limit entries.
func NewBoundedCache[K comparable, V any](limit int, stats *Stats) *BoundedCache[K, V] {
	if limit < 1 {
		limit = 1
	}
	c := &BoundedCache[K, V]{limit: limit, stats: stats}
	c.table.Store(&cacheTable[K, V]{state: CacheStateUninitialized})
	return c
}

// Lookup returns the cached value for key. ok is false on a miss and
// always false once the cache is megamorphic.
func (c *BoundedCache[K, V]) Lookup(key K) (v V, ok bool) {
	t := c.table.Load()
	for i := range t.entries {
		if t.entries[i].key == key {
			c.stats.hit()
			return t.entries[i].value, true
		}
	}
	if t.state == CacheStateMegamorphic {
		c.stats.megaHit()
	} else {
		c.stats.miss()
	}
	return v, false
}

// Update records value for key. In the megamorphic state it does nothing.
func (c *BoundedCache[K, V]) Update(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.table.Load()
	if old.state == CacheStateMegamorphic {
		return
	}
	for _, e := range old.entries {
		if e.key == key {
			return
		}
	}
	if len(old.entries) >= c.limit {
		c.table.Store(&cacheTable[K, V]{state: CacheStateMegamorphic})
		c.stats.reportMegamorphic()
		return
	}

	entries := make([]cacheEntry[K, V], len(old.entries), len(old.entries)+1)
	copy(entries, old.entries)
	entries = append(entries, cacheEntry[K, V]{key: key, value: value})
	state := CacheStateMonomorphic
	if len(entries) > 1 {
		state = CacheStatePolymorphic
		if old.state == CacheStateMonomorphic {
			c.stats.reportPolymorphic()
		}
	}
	c.table.Store(&cacheTable[K, V]{state: state, entries: entries})
}

// State returns the current cache state.
func (c *BoundedCache[K, V]) State() CacheState { return c.table.Load().state }

// Len returns the number of cached entries.
func (c *BoundedCache[K, V]) Len() int { return len(c.table.Load().entries) }

// Stats returns the cache's counters.
func (c *BoundedCache[K, V]) Stats() *Stats { return c.stats }
