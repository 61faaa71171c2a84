package vm

import (
	"fmt"
	"math"
	"strconv"
	"unsafe"

	"github.com/dlclark/regexp2"
)

type KeyKind uint8

const (
	KeyKindString KeyKind = iota
	KeyKindSymbol
)

// PropertyKey represents a property key which can be a string or a symbol.
type PropertyKey struct {
	kind   KeyKind
	name   string  // for string keys
	symbol *Symbol // for symbol keys
}

// maxArrayIndex is the largest valid array index, 2^32 - 2.
const maxArrayIndex = 4294967294

// NewStringKey constructs a PropertyKey for string-named properties.
func NewStringKey(name string) PropertyKey { return PropertyKey{kind: KeyKindString, name: name} }

// NewSymbolKey constructs a PropertyKey for a symbol value.
func NewSymbolKey(sym Value) PropertyKey {
	return PropertyKey{kind: KeyKindSymbol, symbol: sym.AsSymbol()}
}

// IndexKey returns the string key naming an array index.
func IndexKey(index int64) PropertyKey {
	return NewStringKey(strconv.FormatInt(index, 10))
}

func (k PropertyKey) IsString() bool { return k.kind == KeyKindString }
func (k PropertyKey) IsSymbol() bool { return k.kind == KeyKindSymbol }

// Name returns the name of a string key.
func (k PropertyKey) Name() string { return k.name }

// Value converts the key back into a string or symbol value.
func (k PropertyKey) Value() Value {
	if k.kind == KeyKindSymbol {
		return Value{typ: TypeSymbol, obj: unsafe.Pointer(k.symbol)}
	}
	return NewString(k.name)
}

// ArrayIndex reports whether k is a canonical array index key.
func (k PropertyKey) ArrayIndex() (int64, bool) {
	if k.kind != KeyKindString {
		return 0, false
	}
	return tryParseArrayIndex(k.name)
}

func (k PropertyKey) String() string {
	switch k.kind {
	case KeyKindString:
		return k.name
	case KeyKindSymbol:
		return fmt.Sprintf("Symbol(%s)", k.symbol.Description)
	}
	return "<unknown-key>"
}

// tryParseArrayIndex checks if a string represents a valid array index.
// Valid array indices are non-negative integers in range [0, 2^32-1) without leading zeros.
func tryParseArrayIndex(key string) (int64, bool) {
	if key == "" || len(key) > 10 {
		return 0, false
	}
	if len(key) > 1 && key[0] == '0' {
		return 0, false
	}
	var idx int64
	for i := 0; i < len(key); i++ {
		ch := key[i]
		if ch < '0' || ch > '9' {
			return 0, false
		}
		idx = idx*10 + int64(ch-'0')
	}
	if idx > maxArrayIndex {
		return 0, false
	}
	return idx, true
}

// canonicalNumericPattern accepts every string numberToString can produce,
// plus a few that it cannot; the round trip in canonicalNumericIndex
// rejects those.
var canonicalNumericPattern = regexp2.MustCompile(`^(?:-?(?:\d+(?:\.\d+)?(?:e[+-]\d+)?|Infinity)|NaN)$`, regexp2.None)

// canonicalNumericIndex implements CanonicalNumericIndexString: it returns
// the number s denotes when s is exactly how that number prints, or "-0".
func canonicalNumericIndex(s string) (float64, bool) {
	if s == "-0" {
		return math.Copysign(0, -1), true
	}
	if ok, err := canonicalNumericPattern.MatchString(s); err != nil || !ok {
		return 0, false
	}
	n := parseStringToNumber(s)
	if numberToString(n) != s {
		return 0, false
	}
	return n, true
}

// isIntegerIndex reports whether n can address an integer-indexed element:
// integral, not negative zero and not negative.
func isIntegerIndex(n float64) bool {
	return n == math.Trunc(n) && n >= 0 && !math.Signbit(n) && !math.IsInf(n, 0)
}
