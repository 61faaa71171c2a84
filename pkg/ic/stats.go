package ic

import "sync/atomic"

// Stats counts dispatch activity of one cache. All counters are safe for
// concurrent use.
type Stats struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	megaHits    atomic.Uint64
	polymorphic atomic.Uint64
	megamorphic atomic.Uint64
	countHits   bool
}

// NewStats returns a Stats. When countHits is false the hot path skips the
// hit counters and only misses and state changes are recorded.
func NewStats(countHits bool) *Stats {
	return &Stats{countHits: countHits}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Hits        uint64
	Misses      uint64
	MegaHits    uint64
	Polymorphic uint64 // times the cache gained a second entry
	Megamorphic uint64 // times the cache gave up specializing
}

func (s *Stats) hit() {
	if s != nil && s.countHits {
		s.hits.Add(1)
	}
}

func (s *Stats) megaHit() {
	if s != nil && s.countHits {
		s.megaHits.Add(1)
	}
}

func (s *Stats) miss() {
	if s != nil {
		s.misses.Add(1)
	}
}

func (s *Stats) reportPolymorphic() {
	if s != nil {
		s.polymorphic.Add(1)
	}
}

func (s *Stats) reportMegamorphic() {
	if s != nil {
		s.megamorphic.Add(1)
	}
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		MegaHits:    s.megaHits.Load(),
		Polymorphic: s.polymorphic.Load(),
		Megamorphic: s.megamorphic.Load(),
	}
}

// Add sums two snapshots.
func (a Snapshot) Add(b Snapshot) Snapshot {
	return Snapshot{
		Hits:        a.Hits + b.Hits,
		Misses:      a.Misses + b.Misses,
		MegaHits:    a.MegaHits + b.MegaHits,
		Polymorphic: a.Polymorphic + b.Polymorphic,
		Megamorphic: a.Megamorphic + b.Megamorphic,
	}
}

// HitRate returns hits over lookups as a percentage, or 0 with no lookups.
func (a Snapshot) HitRate() float64 {
	total := a.Hits + a.MegaHits + a.Misses
	if total == 0 {
		return 0
	}
	return float64(a.Hits+a.MegaHits) / float64(total) * 100.0
}
