package vm

import (
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"elemwrite/pkg/errors"
)

// ArrayObject is an array whose elements live in a swappable storage
// representation. The object identity never changes; only storage does.
type ArrayObject struct {
	PlainObject

	// elements guards every field below.
	elements       sync.Mutex
	storage        ArrayStorage
	length         int64
	nonExtensible  bool
	lengthReadOnly bool
	frozen         bool

	slow atomic.Bool // inherits from something other than the Array prototype
}

// NewArray creates an empty array with constant storage.
func (r *Realm) NewArray() Value {
	return r.NewArrayWithLength(0)
}

// NewArrayWithLength creates an array of the given length with no
// elements.
func (r *Realm) NewArrayWithLength(length int64) Value {
	a := &ArrayObject{storage: newConstantStorage(), length: length}
	a.init(r, ClassArray, r.ArrayPrototype)
	return Value{typ: TypeArray, obj: unsafe.Pointer(a)}
}

// NewArrayFromValues creates an array holding values, letting the storage
// settle on the narrowest representation that fits them.
func (r *Realm) NewArrayFromValues(values ...Value) Value {
	v := r.NewArray()
	a := v.AsArray()
	c := &storeContext{realm: r, define: true}
	a.elements.Lock()
	for i, e := range values {
		c.dispatch(a, int64(i), normalizeElement(e))
	}
	a.elements.Unlock()
	return v
}

// normalizeElement keeps the internal hole marker out of storage.
func normalizeElement(v Value) Value {
	if v.IsHole() {
		return Undefined
	}
	return v
}

func (a *ArrayObject) Length() int64 {
	a.elements.Lock()
	defer a.elements.Unlock()
	return a.length
}

// StorageKind returns the current storage representation.
func (a *ArrayObject) StorageKind() StorageKind {
	a.elements.Lock()
	defer a.elements.Unlock()
	return a.storage.Kind()
}

// HoleCount returns the number of hole markers inside the storage bounds.
func (a *ArrayObject) HoleCount() int {
	a.elements.Lock()
	defer a.elements.Unlock()
	return a.storage.Holes()
}

// GetElement returns the own element at index.
func (a *ArrayObject) GetElement(index int64) (Value, bool) {
	a.elements.Lock()
	defer a.elements.Unlock()
	return a.storage.Get(index)
}

// Elements returns a copy of the present elements keyed by index.
func (a *ArrayObject) Elements() map[int64]Value {
	a.elements.Lock()
	defer a.elements.Unlock()
	out := make(map[int64]Value)
	a.storage.Each(func(i int64, v Value) { out[i] = v })
	return out
}

// locked reports whether fast storage writes are ruled out for good.
// Caller holds a.elements.
func (a *ArrayObject) locked() bool {
	return a.nonExtensible || a.lengthReadOnly || a.frozen
}

// noteIndex extends length after a store at index. Caller holds
// a.elements.
func (a *ArrayObject) noteIndex(index int64) {
	if index >= a.length {
		a.length = index + 1
	}
	if a.prototypeOf.Load() {
		a.realm.assumptions.invalidatePrototypeElements(ClassArray)
	}
}

// replaceStorage swaps in next. Caller holds a.elements.
func (a *ArrayObject) replaceStorage(from, next ArrayStorage, index int64, pos errors.Position) {
	a.storage = next
	a.realm.traceTransition(from, next, index, pos)
}

func (a *ArrayObject) hasIndexedProperties() bool {
	a.elements.Lock()
	defer a.elements.Unlock()
	lo, hi := a.storage.Bounds()
	return hi-lo > int64(a.storage.Holes())
}

func (a *ArrayObject) SetPrototype(proto Value) bool {
	if !a.PlainObject.SetPrototype(proto) {
		return false
	}
	if !SameValue(proto, a.realm.ArrayPrototype) && !a.slow.Swap(true) {
		a.realm.assumptions.invalidateFastArray()
	}
	return true
}

func (a *ArrayObject) PreventExtensions() {
	a.elements.Lock()
	a.nonExtensible = true
	a.elements.Unlock()
	a.PlainObject.PreventExtensions()
}

// Freeze makes every element and the length read-only.
func (a *ArrayObject) Freeze() {
	a.elements.Lock()
	a.frozen = true
	a.nonExtensible = true
	a.lengthReadOnly = true
	a.elements.Unlock()
	a.PlainObject.Freeze()
}

// SetLengthNonWritable makes the length property read-only.
func (a *ArrayObject) SetLengthNonWritable() {
	a.elements.Lock()
	a.lengthReadOnly = true
	a.elements.Unlock()
}

// SetLength truncates or extends the array. It fails when length is
// read-only.
func (a *ArrayObject) SetLength(length int64) bool {
	a.elements.Lock()
	defer a.elements.Unlock()
	if a.lengthReadOnly {
		return length == a.length
	}
	if length < a.length {
		switch s := a.storage.(type) {
		case segment:
			s.truncate(length)
		case *sparseStorage:
			for i := range s.m {
				if i >= length {
					delete(s.m, i)
				}
			}
		}
	}
	a.length = length
	return true
}

// DeleteElement removes the element at index, leaving a hole. Dense and
// contiguous storage moves to the holes layout of the same element kind.
func (a *ArrayObject) DeleteElement(index int64) bool {
	a.elements.Lock()
	defer a.elements.Unlock()
	_, present := a.storage.Get(index)
	if !present {
		return true
	}
	if a.frozen {
		return false
	}
	switch s := a.storage.(type) {
	case segment:
		if s.segmentLayout() != LayoutHoles {
			h := s.toHoles()
			a.replaceStorage(s, h, index, errors.Position{})
			s = h
		}
		s.punch(index)
	case *sparseStorage:
		delete(s.m, index)
	}
	return true
}

// --- Object protocol ---

func (a *ArrayObject) GetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if idx, ok := key.ArrayIndex(); ok {
		a.elements.Lock()
		defer a.elements.Unlock()
		v, ok := a.storage.Get(idx)
		if !ok {
			return PropertyDescriptor{}, false
		}
		return PropertyDescriptor{Value: v, Writable: !a.frozen, Enumerable: true, Configurable: !a.frozen}, true
	}
	if key.IsString() && key.name == "length" {
		a.elements.Lock()
		defer a.elements.Unlock()
		return PropertyDescriptor{Value: Number(float64(a.length)), Writable: !a.lengthReadOnly}, true
	}
	return a.PlainObject.GetOwnProperty(key)
}

func (a *ArrayObject) DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if idx, ok := key.ArrayIndex(); ok {
		return a.defineElement(idx, desc), nil
	}
	if key.IsString() && key.name == "length" {
		if desc.Accessor || desc.Enumerable || desc.Configurable {
			return false, nil
		}
		n, err := ToNumber(desc.Value)
		if err != nil {
			return false, err
		}
		length := ToUint32(n)
		if float64(length) != n {
			return false, errors.NewRangeError(errors.Position{}, "Invalid array length")
		}
		if !a.SetLength(int64(length)) {
			return false, nil
		}
		if !desc.Writable {
			a.SetLengthNonWritable()
		}
		return true, nil
	}
	return a.PlainObject.DefineOwnProperty(key, desc)
}

// defineElement stores a plain data element through the storage lattice.
// Elements with other attributes are not representable and are refused.
func (a *ArrayObject) defineElement(index int64, desc PropertyDescriptor) bool {
	if desc.Accessor || !desc.Writable || !desc.Enumerable || !desc.Configurable {
		return false
	}
	a.elements.Lock()
	defer a.elements.Unlock()
	if a.frozen {
		return false
	}
	if _, present := a.storage.Get(index); !present && a.nonExtensible {
		return false
	}
	if index >= a.length && a.lengthReadOnly {
		return false
	}
	c := &storeContext{realm: a.realm, define: true}
	return c.dispatch(a, index, normalizeElement(desc.Value))
}

func (a *ArrayObject) Get(key PropertyKey, receiver Value) (Value, error) {
	return ordinaryGet(a, key, receiver)
}

func (a *ArrayObject) Set(key PropertyKey, value, receiver Value) (bool, error) {
	return ordinarySet(a, key, value, receiver)
}

func (a *ArrayObject) Delete(key PropertyKey) bool {
	if idx, ok := key.ArrayIndex(); ok {
		return a.DeleteElement(idx)
	}
	if key.IsString() && key.name == "length" {
		return false
	}
	return a.PlainObject.Delete(key)
}

// GetIndex reads index through the prototype chain, as a script read
// would.
func (a *ArrayObject) GetIndex(index int64) (Value, error) {
	if v, ok := a.GetElement(index); ok {
		return v, nil
	}
	return ordinaryGet(a, IndexKey(index), ObjectValue(a))
}

// denseIndexLimit is the first index that always forces sparse storage.
const denseIndexLimit = math.MaxInt32
