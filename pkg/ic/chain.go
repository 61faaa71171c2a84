// Package ic implements the self-specializing dispatch structures used by
// element write sites.
package ic

import (
	"sync"
	"sync/atomic"
)

// Guard reports whether a cached entry applies to key.
type Guard[K any] func(key K) bool

// Specializer builds the guarded entry for a key that missed every cached
// entry. The returned guard must accept key.
type Specializer[K, H any] func(key K) (Guard[K], H)

type node[K, H any] struct {
	guard   Guard[K]
	handler H
	next    atomic.Pointer[node[K, H]]
}

// Chain is an append-only list of guarded handlers. Dispatch walks the
// list without locking; a miss takes the chain mutex, specializes the key
// and links the new entry at the tail. Once linked an entry is never
// removed.
type Chain[K, H any] struct {
	mu         sync.Mutex
	head       atomic.Pointer[node[K, H]]
	tail       *node[K, H] // guarded by mu
	length     atomic.Int32
	specialize Specializer[K, H]
	stats      *Stats

	// Limit caps the number of entries; zero means unbounded. When the cap
	// is hit every later miss returns Generic.
	Limit       int
	Generic     H
	megamorphic atomic.Bool

	// OnPolymorphic, if set, is called under the chain mutex when the chain
	// grows to its second entry.
	OnPolymorphic func()
}

// NewChain creates an empty chain.
func NewChain[K, H any](specialize Specializer[K, H], stats *Stats) *Chain[K, H] {
	return &Chain[K, H]{specialize: specialize, stats: stats}
}

// Lookup returns the handler of the first entry whose guard accepts key,
// specializing a new entry on a miss.
func (c *Chain[K, H]) Lookup(key K) H {
	for n := c.head.Load(); n != nil; n = n.next.Load() {
		if n.guard(key) {
			c.stats.hit()
			return n.handler
		}
	}
	if c.megamorphic.Load() {
		c.stats.megaHit()
		return c.Generic
	}
	return c.miss(key)
}

func (c *Chain[K, H]) miss(key K) H {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have linked a matching entry meanwhile.
	for n := c.head.Load(); n != nil; n = n.next.Load() {
		if n.guard(key) {
			c.stats.hit()
			return n.handler
		}
	}
	if c.megamorphic.Load() {
		c.stats.megaHit()
		return c.Generic
	}
	c.stats.miss()
	if c.Limit > 0 && int(c.length.Load()) >= c.Limit {
		c.megamorphic.Store(true)
		c.stats.reportMegamorphic()
		return c.Generic
	}

	guard, handler := c.specialize(key)
	n := &node[K, H]{guard: guard, handler: handler}
	if c.tail == nil {
		c.head.Store(n)
	} else {
		c.tail.next.Store(n)
	}
	c.tail = n
	if c.length.Add(1) == 2 {
		c.stats.reportPolymorphic()
		if c.OnPolymorphic != nil {
			c.OnPolymorphic()
		}
	}
	return handler
}

// Len returns the number of linked entries.
func (c *Chain[K, H]) Len() int { return int(c.length.Load()) }

// Megamorphic reports whether the chain stopped specializing.
func (c *Chain[K, H]) Megamorphic() bool { return c.megamorphic.Load() }

// Handlers returns the linked handlers in dispatch order.
func (c *Chain[K, H]) Handlers() []H {
	var out []H
	for n := c.head.Load(); n != nil; n = n.next.Load() {
		out = append(out, n.handler)
	}
	return out
}

// Stats returns the chain's counters.
func (c *Chain[K, H]) Stats() *Stats { return c.stats }
