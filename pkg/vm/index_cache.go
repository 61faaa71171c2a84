package vm

import (
	"math"
	"strconv"
)

// ElementIndex is a normalized element address: an array index, or any
// other property key.
type ElementIndex struct {
	index   int64
	key     PropertyKey
	isIndex bool // 0 <= index <= 2^32-2
	isInt   bool // came from an int32 index value, possibly negative
}

func arrayIndex(i int64) ElementIndex { return ElementIndex{index: i, isIndex: true} }

func keyIndex(k PropertyKey) ElementIndex { return ElementIndex{key: k} }

// smallIndex normalizes an int32 index value without allocating for the
// common non-negative case.
func smallIndex(i int32) ElementIndex {
	if i >= 0 {
		return ElementIndex{index: int64(i), isIndex: true, isInt: true}
	}
	return ElementIndex{index: int64(i), isInt: true, key: NewStringKey(strconv.FormatInt(int64(i), 10))}
}

// ArrayIndex returns the index when e addresses an array element.
func (e ElementIndex) ArrayIndex() (int64, bool) { return e.index, e.isIndex }

// PropertyKey returns e as a property key.
func (e ElementIndex) PropertyKey() PropertyKey {
	if e.isIndex {
		return IndexKey(e.index)
	}
	return e.key
}

func (e ElementIndex) String() string {
	if e.isIndex || e.isInt {
		return strconv.FormatInt(e.index, 10)
	}
	return e.key.String()
}

// ToArrayIndex normalizes an index value to an array index or a property
// key. Object indices are converted with ToPropertyKey, which may run
// script code.
func ToArrayIndex(v Value) (ElementIndex, error) {
	switch v.typ {
	case TypeIntegerNumber:
		return smallIndex(v.AsInteger()), nil
	case TypeFloatNumber:
		f := v.AsFloat()
		if f >= 0 && f <= maxArrayIndex && f == math.Trunc(f) {
			return arrayIndex(int64(f)), nil
		}
		return keyIndex(NewStringKey(numberToString(f))), nil
	case TypeString:
		if i, ok := tryParseArrayIndex(v.AsString()); ok {
			return arrayIndex(i), nil
		}
		return keyIndex(NewStringKey(v.AsString())), nil
	case TypeSymbol:
		return keyIndex(NewSymbolKey(v)), nil
	}
	key, err := ToPropertyKey(v)
	if err != nil {
		return ElementIndex{}, err
	}
	if i, ok := key.ArrayIndex(); ok {
		return arrayIndex(i), nil
	}
	return keyIndex(key), nil
}

// Index-shape states. The state only moves forward.
const (
	indexUninitialized uint32 = iota
	indexInt
	indexObject
)

// normalizeIndex checks that target accepts property writes and
// normalizes index, remembering whether this site has only ever seen
// int32 indices.
func (s *CallSite) normalizeIndex(target, index Value) (ElementIndex, error) {
	if err := RequireObjectCoercible(target, index); err != nil {
		return ElementIndex{}, s.locate(err)
	}
	switch s.indexState.Load() {
	case indexInt:
		if index.IsInteger() {
			return smallIndex(index.AsInteger()), nil
		}
		s.indexState.Store(indexObject)
		s.realm.logger.Debug("index shape generalized", "site", s.pos.String())
	case indexUninitialized:
		if index.IsInteger() {
			s.indexState.CompareAndSwap(indexUninitialized, indexInt)
			return smallIndex(index.AsInteger()), nil
		}
		s.indexState.Store(indexObject)
	}
	idx, err := ToArrayIndex(index)
	return idx, s.locate(err)
}

// IndexShape reports the site's index-shape state: "uninitialized",
// "int" or "object".
func (s *CallSite) IndexShape() string {
	switch s.indexState.Load() {
	case indexInt:
		return "int"
	case indexObject:
		return "object"
	}
	return "uninitialized"
}
