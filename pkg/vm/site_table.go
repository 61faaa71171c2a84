package vm

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"elemwrite/pkg/errors"
	"elemwrite/pkg/ic"
)

// SiteTable hands out one CallSite per program location, allocating each
// on first use.
type SiteTable struct {
	realm *Realm
	mu    sync.Mutex
	sites map[int]*CallSite
}

func (r *Realm) NewSiteTable() *SiteTable {
	return &SiteTable{realm: r, sites: make(map[int]*CallSite)}
}

// Site returns the call site for id. The position and options only take
// effect when the site is created.
func (t *SiteTable) Site(id int, pos errors.Position, opts ...SiteOption) *CallSite {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sites[id]
	if s == nil {
		s = t.realm.NewCallSite(pos, opts...)
		t.sites[id] = s
	}
	return s
}

// Len returns the number of allocated sites.
func (t *SiteTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sites)
}

// Stats sums the counters of every site.
func (t *SiteTable) Stats() ic.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total ic.Snapshot
	for _, s := range t.sites {
		total = total.Add(s.Stats())
	}
	return total
}

// PrintStats prints cache performance for the table and each site.
func (t *SiteTable) PrintStats(w io.Writer) {
	t.mu.Lock()
	ids := make([]int, 0, len(t.sites))
	for id := range t.sites {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	sites := make([]*CallSite, len(ids))
	for i, id := range ids {
		sites[i] = t.sites[id]
	}
	t.mu.Unlock()

	total := t.Stats()
	if total == (ic.Snapshot{}) {
		fmt.Fprintf(w, "IC Stats: No cache activity\n")
		return
	}
	fmt.Fprintf(w, "IC Stats: Hits: %d (%.1f%%), Misses: %d, Megamorphic hits: %d\n",
		total.Hits, total.HitRate(), total.Misses, total.MegaHits)
	fmt.Fprintf(w, "  Polymorphic: %d, Megamorphic: %d\n", total.Polymorphic, total.Megamorphic)

	fmt.Fprintf(w, "  Cache sites: %d\n", len(sites))
	for i, s := range sites {
		st := s.Stats()
		fmt.Fprintf(w, "    Site %d (%s): index %s, receivers [%s], storage [%s], array types %s (hits: %d, misses: %d)\n",
			ids[i], s.pos, s.IndexShape(),
			strings.Join(s.ReceiverHandlers(), " "),
			strings.Join(s.ArrayWriters(), " "),
			s.ArrayTypeState(), st.Hits, st.Misses)
	}
}
