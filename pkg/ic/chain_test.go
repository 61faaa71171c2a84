package ic

import (
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"
)

func parityChain(stats *Stats, built *atomic.Int32) *Chain[int, string] {
	return NewChain(func(k int) (Guard[int], string) {
		built.Add(1)
		parity := k % 2
		name := "even"
		if parity == 1 {
			name = "odd"
		}
		return func(k2 int) bool { return k2%2 == parity }, name
	}, stats)
}

func TestChain_SpecializesOnMiss(t *testing.T) {
	var built atomic.Int32
	stats := NewStats(true)
	c := parityChain(stats, &built)

	if got := c.Lookup(2); got != "even" {
		t.Fatalf("Lookup(2) = %q", got)
	}
	if got := c.Lookup(4); got != "even" {
		t.Fatalf("Lookup(4) = %q", got)
	}
	if c.Len() != 1 || built.Load() != 1 {
		t.Fatalf("expected one entry, got len=%d built=%d", c.Len(), built.Load())
	}
	if got := c.Lookup(3); got != "odd" {
		t.Fatalf("Lookup(3) = %q", got)
	}

	snap := stats.Snapshot()
	if snap.Misses != 2 || snap.Hits != 1 {
		t.Errorf("stats = %+v, want 2 misses and 1 hit", snap)
	}
	if snap.Polymorphic != 1 {
		t.Errorf("polymorphic reported %d times, want 1", snap.Polymorphic)
	}
	if h := c.Handlers(); len(h) != 2 || h[0] != "even" || h[1] != "odd" {
		t.Errorf("Handlers() = %v", h)
	}
}

func TestChain_OnPolymorphicFiresOnce(t *testing.T) {
	c := NewChain(func(k int) (Guard[int], int) {
		return func(k2 int) bool { return k2 == k }, k
	}, nil)
	calls := 0
	c.OnPolymorphic = func() { calls++ }
	for i := 0; i < 5; i++ {
		c.Lookup(i)
	}
	if calls != 1 {
		t.Errorf("OnPolymorphic called %d times, want 1", calls)
	}
	if c.Len() != 5 {
		t.Errorf("Len() = %d, want 5", c.Len())
	}
}

func TestChain_LimitGoesGeneric(t *testing.T) {
	c := NewChain(func(k int) (Guard[int], int) {
		return func(k2 int) bool { return k2 == k }, k
	}, NewStats(true))
	c.Limit = 2
	c.Generic = -1

	c.Lookup(10)
	c.Lookup(20)
	if got := c.Lookup(30); got != -1 {
		t.Fatalf("third key got %d, want generic", got)
	}
	if !c.Megamorphic() {
		t.Fatalf("chain not megamorphic after limit")
	}
	if got := c.Lookup(10); got != 10 {
		t.Errorf("existing entry lost: %d", got)
	}
	if got := c.Lookup(40); got != -1 {
		t.Errorf("megamorphic miss got %d", got)
	}
}

func TestChain_ConcurrentMissesLinkOnce(t *testing.T) {
	var built atomic.Int32
	c := parityChain(nil, &built)

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 1000; i++ {
				c.Lookup(i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 || built.Load() != 2 {
		t.Errorf("len=%d built=%d, want 2 each", c.Len(), built.Load())
	}
}
