package vm

import (
	"fmt"
	"math"
	"slices"
)

// StorageKind names an array storage representation.
type StorageKind uint8

const (
	StorageConstant StorageKind = iota

	StorageDenseInt
	StorageDenseDouble
	StorageDenseRefObject
	StorageDenseObject

	StorageContiguousInt
	StorageContiguousDouble
	StorageContiguousRefObject
	StorageContiguousObject

	StorageHolesInt
	StorageHolesDouble
	StorageHolesRefObject
	StorageHolesObject

	StorageSparse
	StorageTypedView
)

// ElementKind is the value domain of a segment storage.
type ElementKind uint8

const (
	ElementInt       ElementKind = iota // int32
	ElementDouble                       // float64
	ElementRefObject                    // heap objects only
	ElementObject                       // any value
)

func (e ElementKind) String() string {
	switch e {
	case ElementInt:
		return "Int"
	case ElementDouble:
		return "Double"
	case ElementRefObject:
		return "RefObject"
	case ElementObject:
		return "Object"
	}
	return fmt.Sprintf("ElementKind(%d)", uint8(e))
}

// Layout is the index-range shape of a segment storage.
type Layout uint8

const (
	LayoutDense      Layout = iota // [0, n), no holes
	LayoutContiguous               // [start, start+n), no holes
	LayoutHoles                    // [start, start+n), holes allowed
)

func (l Layout) String() string {
	switch l {
	case LayoutDense:
		return "Dense"
	case LayoutContiguous:
		return "Contiguous"
	case LayoutHoles:
		return "Holes"
	}
	return fmt.Sprintf("Layout(%d)", uint8(l))
}

func segmentKind(e ElementKind, l Layout) StorageKind {
	return StorageDenseInt + StorageKind(l)*4 + StorageKind(e)
}

// Segment reports the element kind and layout of a segment storage kind.
func (k StorageKind) Segment() (ElementKind, Layout, bool) {
	if k < StorageDenseInt || k > StorageHolesObject {
		return 0, 0, false
	}
	off := k - StorageDenseInt
	return ElementKind(off % 4), Layout(off / 4), true
}

func (k StorageKind) String() string {
	switch k {
	case StorageConstant:
		return "Constant"
	case StorageSparse:
		return "Sparse"
	case StorageTypedView:
		return "TypedView"
	}
	if e, l, ok := k.Segment(); ok {
		return l.String() + "-" + e.String()
	}
	return fmt.Sprintf("StorageKind(%d)", uint8(k))
}

// ArrayStorage is the backing store of an array. Implementations are only
// touched with the owning array's element lock held.
type ArrayStorage interface {
	Kind() StorageKind
	// Get returns the element at index; ok is false for holes and indices
	// outside the storage.
	Get(index int64) (v Value, ok bool)
	// Holes counts hole markers inside the storage bounds.
	Holes() int
	// Bounds returns the covered index range [lo, hi).
	Bounds() (lo, hi int64)
	// Each visits present elements in ascending index order.
	Each(fn func(index int64, v Value))
}

// --- Constant ---

// constantStorage is the empty representation every array starts with.
// It is never shared so each instance has its own identity.
type constantStorage struct {
	_ byte
}

func newConstantStorage() *constantStorage { return &constantStorage{} }

func (*constantStorage) Kind() StorageKind               { return StorageConstant }
func (*constantStorage) Get(int64) (Value, bool)         { return Undefined, false }
func (*constantStorage) Holes() int                      { return 0 }
func (*constantStorage) Bounds() (int64, int64)          { return 0, 0 }
func (*constantStorage) Each(func(index int64, v Value)) {}

// --- Segments ---

// holeDoubleBits is the NaN payload marking a hole in double storage.
// Arithmetic never produces it; a value carrying it widens the storage.
const holeDoubleBits = 0x7FF80000DEADBEEF

// elementOps describes one segment element domain.
type elementOps[T any] struct {
	kind   ElementKind
	hole   T
	isHole func(T) bool
	box    func(T) Value
	// unbox reports whether v belongs to the domain.
	unbox func(v Value) (T, bool)
}

var intOps = &elementOps[int32]{
	kind:   ElementInt,
	hole:   math.MinInt32,
	isHole: func(x int32) bool { return x == math.MinInt32 },
	box:    IntegerValue,
	unbox: func(v Value) (int32, bool) {
		if v.IsInteger() {
			return v.AsInteger(), true
		}
		return 0, false
	},
}

var doubleOps = &elementOps[float64]{
	kind:   ElementDouble,
	hole:   math.Float64frombits(holeDoubleBits),
	isHole: func(x float64) bool { return math.Float64bits(x) == holeDoubleBits },
	box:    NumberValue,
	unbox: func(v Value) (float64, bool) {
		if v.IsNumber() {
			return v.AsFloat(), true
		}
		return 0, false
	},
}

var refObjectOps = &elementOps[Value]{
	kind:   ElementRefObject,
	hole:   Hole,
	isHole: Value.IsHole,
	box:    func(v Value) Value { return v },
	unbox: func(v Value) (Value, bool) {
		return v, v.IsObject()
	},
}

var objectOps = &elementOps[Value]{
	kind:   ElementObject,
	hole:   Hole,
	isHole: Value.IsHole,
	box:    func(v Value) Value { return v },
	unbox: func(v Value) (Value, bool) {
		return v, true
	},
}

// segmentStorage holds elements [start, start+n) in buf[off:off+n].
// Free capacity exists on both sides so appends and prepends are
// amortized O(1).
type segmentStorage[T any] struct {
	layout Layout
	ops    *elementOps[T]
	buf    []T
	off    int
	n      int
	start  int64
	holes  int
}

func newSegment[T any](ops *elementOps[T], layout Layout, start int64) *segmentStorage[T] {
	return &segmentStorage[T]{layout: layout, ops: ops, buf: make([]T, 8), off: 0, start: start}
}

func (s *segmentStorage[T]) Kind() StorageKind { return segmentKind(s.ops.kind, s.layout) }

func (s *segmentStorage[T]) end() int64 { return s.start + int64(s.n) }

func (s *segmentStorage[T]) inBounds(index int64) bool {
	return index >= s.start && index < s.end()
}

func (s *segmentStorage[T]) at(index int64) T {
	return s.buf[s.off+int(index-s.start)]
}

func (s *segmentStorage[T]) put(index int64, x T) {
	s.buf[s.off+int(index-s.start)] = x
}

func (s *segmentStorage[T]) Get(index int64) (Value, bool) {
	if !s.inBounds(index) {
		return Undefined, false
	}
	x := s.at(index)
	if s.ops.isHole(x) {
		return Undefined, false
	}
	return s.ops.box(x), true
}

// has reports whether index holds a non-hole element.
func (s *segmentStorage[T]) has(index int64) bool {
	return s.inBounds(index) && !s.ops.isHole(s.at(index))
}

func (s *segmentStorage[T]) Holes() int             { return s.holes }
func (s *segmentStorage[T]) Bounds() (int64, int64) { return s.start, s.end() }

func (s *segmentStorage[T]) Each(fn func(int64, Value)) {
	for i := 0; i < s.n; i++ {
		x := s.buf[s.off+i]
		if !s.ops.isHole(x) {
			fn(s.start+int64(i), s.ops.box(x))
		}
	}
}

// cover grows the segment so that [lo, hi) is inside its bounds. New
// slots are holes and are counted.
func (s *segmentStorage[T]) cover(lo, hi int64) {
	if s.n == 0 {
		s.start = lo
	}
	if lo > s.start {
		lo = s.start
	}
	if hi < s.end() {
		hi = s.end()
	}
	before := int(s.start - lo)
	after := int(hi - s.end())
	if before == 0 && after == 0 {
		return
	}
	if before > s.off || s.off+s.n+after > len(s.buf) {
		newLen := s.n + before + after
		capacity := newLen + newLen/2 + 8
		front := before + (capacity-newLen)/4
		nb := make([]T, capacity)
		copy(nb[front:], s.buf[s.off:s.off+s.n])
		s.buf = nb
		s.off = front
	}
	for i := 1; i <= before; i++ {
		s.buf[s.off-i] = s.ops.hole
	}
	for i := 0; i < after; i++ {
		s.buf[s.off+s.n+i] = s.ops.hole
	}
	s.off -= before
	s.n += before + after
	s.start = lo
	s.holes += before + after
}

// store writes x at index, which must be inside or adjacent to the bounds
// (or open a gap on a holes segment).
func (s *segmentStorage[T]) store(index int64, x T) {
	if !s.inBounds(index) {
		s.cover(index, index+1)
	}
	if s.ops.isHole(s.at(index)) {
		s.holes--
	}
	s.put(index, x)
}

// punch turns an in-bounds element into a hole.
func (s *segmentStorage[T]) punch(index int64) {
	if s.inBounds(index) && !s.ops.isHole(s.at(index)) {
		s.put(index, s.ops.hole)
		s.holes++
	}
}

// truncate drops every element at or beyond length.
func (s *segmentStorage[T]) truncate(length int64) {
	if length >= s.end() {
		return
	}
	if length <= s.start {
		s.n, s.holes = 0, 0
		return
	}
	keep := int(length - s.start)
	for i := keep; i < s.n; i++ {
		if s.ops.isHole(s.buf[s.off+i]) {
			s.holes--
		}
	}
	s.n = keep
}

// withLayout returns a copy with another layout sharing the elements. The
// receiver must not be used afterwards.
func (s *segmentStorage[T]) withLayout(l Layout) *segmentStorage[T] {
	ns := *s
	ns.layout = l
	return &ns
}

// rebox converts a segment to another element domain, keeping layout and
// holes. Every element of src must belong to dst.
func rebox[T, U any](src *segmentStorage[T], dst *elementOps[U]) *segmentStorage[U] {
	ns := &segmentStorage[U]{
		layout: src.layout,
		ops:    dst,
		buf:    make([]U, src.n+8),
		off:    4,
		n:      src.n,
		start:  src.start,
		holes:  src.holes,
	}
	for i := 0; i < src.n; i++ {
		x := src.buf[src.off+i]
		if src.ops.isHole(x) {
			ns.buf[ns.off+i] = dst.hole
			continue
		}
		y, _ := dst.unbox(src.ops.box(x))
		ns.buf[ns.off+i] = y
	}
	return ns
}

// --- Sparse ---

// sparseStorage maps indices to values; absent keys are holes.
type sparseStorage struct {
	m map[int64]Value
}

func newSparseStorage() *sparseStorage {
	return &sparseStorage{m: make(map[int64]Value)}
}

func (s *sparseStorage) Kind() StorageKind { return StorageSparse }

func (s *sparseStorage) Get(index int64) (Value, bool) {
	v, ok := s.m[index]
	return v, ok
}

func (s *sparseStorage) Holes() int { return 0 }

func (s *sparseStorage) Bounds() (int64, int64) {
	if len(s.m) == 0 {
		return 0, 0
	}
	lo, hi := int64(math.MaxInt64), int64(0)
	for i := range s.m {
		lo = min(lo, i)
		hi = max(hi, i+1)
	}
	return lo, hi
}

func (s *sparseStorage) Each(fn func(int64, Value)) {
	keys := make([]int64, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fn(k, s.m[k])
	}
}

// toSparse copies every present element of st into a new sparse storage.
func toSparse(st ArrayStorage) *sparseStorage {
	sp := newSparseStorage()
	st.Each(func(i int64, v Value) { sp.m[i] = v })
	return sp
}

// segment is the element-kind independent view of a segmentStorage.
type segment interface {
	ArrayStorage
	segmentLayout() Layout
	truncate(length int64)
	punch(index int64)
	toHoles() segment
}

func (s *segmentStorage[T]) segmentLayout() Layout { return s.layout }

func (s *segmentStorage[T]) toHoles() segment { return s.withLayout(LayoutHoles) }
