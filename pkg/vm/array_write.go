package vm

import (
	"fmt"
	"math"

	"elemwrite/pkg/errors"
	"elemwrite/pkg/ic"
)

const debugTransitions = false

// storeContext carries one storage-level write attempt.
type storeContext struct {
	realm    *Realm
	site     *CallSite // nil outside a call site
	writeOwn bool      // initialising writes skip inherited-element checks
	define   bool      // DefineOwnProperty: no prototype consultation, no lock fallback
	retried  bool      // inside the post-transition retry
}

func (c *storeContext) pos() errors.Position {
	if c.site == nil {
		return errors.Position{}
	}
	return c.site.pos
}

// arrayKey is what the array write chain guards on.
type arrayKey struct {
	target  HeapObject
	storage ArrayStorage
	locked  bool
}

// arrayWriter is one storage-level write strategy. handled is false when
// the write must take the generic property path instead.
type arrayWriter struct {
	name  string
	write func(c *storeContext, target HeapObject, st ArrayStorage, index int64, v Value) (handled bool, err error)
}

func (w arrayWriter) String() string { return w.name }

// selectArrayWriter specializes the array write chain for k. Locked
// arrays get a writer bound to their exact storage instance that always
// defers to the generic path; other arrays get one writer per storage kind.
func selectArrayWriter(k arrayKey) (ic.Guard[arrayKey], arrayWriter) {
	if k.locked {
		inst := k.storage
		return func(k2 arrayKey) bool { return k2.storage == inst }, exactWriter
	}
	if tv, ok := k.storage.(*typedView); ok {
		kind := tv.ta.kind
		return func(k2 arrayKey) bool {
			t, ok := k2.storage.(*typedView)
			return ok && t.ta.kind == kind
		}, typedWriter(kind)
	}
	kind := k.storage.Kind()
	return func(k2 arrayKey) bool { return !k2.locked && k2.storage.Kind() == kind }, storageWriter(kind)
}

var exactWriter = arrayWriter{
	name: "Exact",
	write: func(*storeContext, HeapObject, ArrayStorage, int64, Value) (bool, error) {
		return false, nil
	},
}

func storageWriter(kind StorageKind) arrayWriter {
	w := arrayWriter{name: kind.String()}
	switch kind {
	case StorageConstant:
		w.write = writeConstant
	case StorageSparse:
		w.write = writeSparse
	default:
		elem, _, _ := kind.Segment()
		switch elem {
		case ElementInt:
			w.write = segmentWriter(intOps)
		case ElementDouble:
			w.write = segmentWriter(doubleOps)
		case ElementRefObject:
			w.write = segmentWriter(refObjectOps)
		default:
			w.write = segmentWriter(objectOps)
		}
	}
	return w
}

func segmentWriter[T any](ops *elementOps[T]) func(*storeContext, HeapObject, ArrayStorage, int64, Value) (bool, error) {
	return func(c *storeContext, target HeapObject, st ArrayStorage, index int64, v Value) (bool, error) {
		return writeSegment(c, target.(*ArrayObject), st.(*segmentStorage[T]), index, v), nil
	}
}

func typedWriter(kind TypedArrayKind) arrayWriter {
	return arrayWriter{
		name: "TypedView-" + kind.Name(),
		write: func(c *storeContext, target HeapObject, st ArrayStorage, index int64, v Value) (bool, error) {
			return true, st.(*typedView).ta.setIndex(index, v)
		},
	}
}

// dispatch runs the storage-level write for a. Inside a call site the
// strategy comes from the site's chain (or its retry chain after a
// transition). Caller holds a.elements.
func (c *storeContext) dispatch(a *ArrayObject, index int64, v Value) bool {
	key := arrayKey{target: a, storage: a.storage, locked: !c.define && a.locked()}
	var w arrayWriter
	switch {
	case c.site == nil:
		_, w = selectArrayWriter(key)
	case c.retried:
		w = c.site.retries.Lookup(key)
	default:
		w = c.site.arrays.Lookup(key)
	}
	ok, _ := w.write(c, a, key.storage, index, v)
	return ok
}

// transition installs next as a's storage and retries the write once
// against it. Further lattice steps during the retry are taken in place.
// If the retry still cannot complete, the storage moves straight to
// sparse.
func (c *storeContext) transition(a *ArrayObject, from, next ArrayStorage, index int64, v Value) bool {
	a.replaceStorage(from, next, index, c.pos())
	if c.retried {
		return c.dispatch(a, index, v)
	}
	c.retried = true
	defer func() { c.retried = false }()
	if c.dispatch(a, index, v) {
		return true
	}
	if _, already := a.storage.(*sparseStorage); already {
		return false
	}
	sp := toSparse(a.storage)
	a.replaceStorage(a.storage, sp, index, c.pos())
	sp.m[index] = v
	a.noteIndex(index)
	return true
}

// needsSlowSet reports whether a write of an absent element must defer to
// the generic path because a prototype might own index.
func (c *storeContext) needsSlowSet(a *ArrayObject, holesLike bool, index int64) bool {
	if c.define {
		return false
	}
	as := c.realm.assumptions
	check := !as.NoPrototypeElements.Valid() && !c.writeOwn
	if !check && holesLike {
		check = !as.FastArray.Valid() && a.slow.Load()
	}
	return check && hasInheritedElement(a, index)
}

// elementKindFor returns the narrowest element domain holding v.
func elementKindFor(v Value) ElementKind {
	switch {
	case v.IsInteger() && v.AsInteger() != math.MinInt32:
		return ElementInt
	case v.IsNumber() && math.Float64bits(v.AsFloat()) != holeDoubleBits:
		return ElementDouble
	case v.IsObject():
		return ElementRefObject
	}
	return ElementObject
}

// initialStorage picks the first real representation of a constant array.
func initialStorage(r *Realm, index int64, v Value) ArrayStorage {
	if index >= denseIndexLimit || index > int64(r.options.MaxContiguousStart) {
		return newSparseStorage()
	}
	layout := LayoutContiguous
	if index == 0 {
		layout = LayoutDense
	}
	switch elementKindFor(v) {
	case ElementInt:
		return newSegment(intOps, layout, index)
	case ElementDouble:
		return newSegment(doubleOps, layout, index)
	case ElementRefObject:
		return newSegment(refObjectOps, layout, index)
	}
	return newSegment(objectOps, layout, index)
}

func writeConstant(c *storeContext, target HeapObject, st ArrayStorage, index int64, v Value) (bool, error) {
	a := target.(*ArrayObject)
	if c.needsSlowSet(a, false, index) {
		return false, nil
	}
	return c.transition(a, st, initialStorage(c.realm, index, v), index, v), nil
}

func writeSparse(c *storeContext, target HeapObject, st ArrayStorage, index int64, v Value) (bool, error) {
	a := target.(*ArrayObject)
	s := st.(*sparseStorage)
	if _, present := s.m[index]; !present && c.needsSlowSet(a, true, index) {
		return false, nil
	}
	s.m[index] = v
	a.noteIndex(index)
	return true, nil
}

// widen returns s converted to the element domain that also holds v,
// keeping the layout. Int widens to Double for numbers (including the int
// hole value); everything else widens to Object.
func widen[T any](s *segmentStorage[T], v Value) ArrayStorage {
	if s.ops.kind == ElementInt && v.IsNumber() {
		return rebox(s, doubleOps)
	}
	return rebox(s, objectOps)
}

// writeSegment is the write strategy of every dense, contiguous and holes
// representation.
func writeSegment[T any](c *storeContext, a *ArrayObject, s *segmentStorage[T], index int64, v Value) bool {
	present := s.has(index)
	holes := s.layout == LayoutHoles
	if !present && c.needsSlowSet(a, holes, index) {
		return false
	}

	x, fits := s.ops.unbox(v)
	if !fits || s.ops.isHole(x) {
		return c.transition(a, s, widen(s, v), index, v)
	}

	// In-bounds fast path; a holes segment without holes skips the slot
	// check entirely.
	if present || (holes && s.holes > 0 && s.inBounds(index)) {
		s.put(index, x)
		if !present {
			s.holes--
		}
		a.noteIndex(index)
		return true
	}

	if index >= denseIndexLimit {
		return c.transition(a, s, toSparse(s), index, v)
	}

	maxGap := int64(c.realm.options.MaxHoleGap)
	switch {
	case s.n == 0 && s.layout == LayoutDense && index != 0:
		var next ArrayStorage
		switch {
		case index <= int64(c.realm.options.MaxContiguousStart):
			next = s.withLayout(LayoutContiguous)
		case index <= maxGap:
			next = s.withLayout(LayoutHoles)
		default:
			next = toSparse(s)
		}
		return c.transition(a, s, next, index, v)

	case s.n == 0, index == s.end(), index == s.start-1 && s.layout != LayoutDense:
		s.store(index, x)
		a.noteIndex(index)
		return true
	}

	gap := index - s.end()
	if index < s.start {
		gap = s.start - 1 - index
	}
	if gap > maxGap {
		return c.transition(a, s, toSparse(s), index, v)
	}
	if !holes {
		return c.transition(a, s, s.withLayout(LayoutHoles), index, v)
	}
	s.store(index, x)
	a.noteIndex(index)
	return true
}

// traceTransition reports a storage change when tracing is enabled.
func (r *Realm) traceTransition(from, to ArrayStorage, index int64, pos errors.Position) {
	if debugTransitions {
		fmt.Printf("[transition] %s -> %s at index %d (%s)\n", from.Kind(), to.Kind(), index, pos)
	}
	if r.options.TraceTransitions {
		r.logger.Debug("array storage transition",
			"from", from.Kind().String(),
			"to", to.Kind().String(),
			"index", index,
			"site", pos.String())
	}
}
