package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unsafe"
)

// cleanExponentialFormat removes leading zeros from exponent to match JS format
// e.g., "1e-07" -> "1e-7", "1e+25" -> "1e+25"
func cleanExponentialFormat(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == 'e' || s[i] == 'E' {
			if i+1 < len(s) && (s[i+1] == '+' || s[i+1] == '-') {
				sign := s[i+1]
				j := i + 2
				for j < len(s) && s[j] == '0' {
					j++
				}
				if j >= len(s) {
					return s[:i+2] + "0"
				}
				return s[:i+1] + string(sign) + s[j:]
			}
			break
		}
	}
	return s
}

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeHole // internal marker for absent array slots, never visible to scripts

	TypeBoolean
	TypeIntegerNumber
	TypeFloatNumber
	TypeBigInt
	TypeString
	TypeSymbol

	TypeObject
	TypeArray
	TypeTypedArray
	TypeArrayBuffer
	TypeSharedArrayBuffer
	TypeNativeFunction

	TypeForeign // value owned by an interop boundary
	TypeHost    // arbitrary Go value with no script semantics
)

func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeHole:
		return "hole"
	case TypeBoolean:
		return "boolean"
	case TypeIntegerNumber:
		return "integer"
	case TypeFloatNumber:
		return "float"
	case TypeBigInt:
		return "bigint"
	case TypeString:
		return "string"
	case TypeSymbol:
		return "symbol"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeTypedArray:
		return "typedarray"
	case TypeArrayBuffer:
		return "arraybuffer"
	case TypeSharedArrayBuffer:
		return "sharedarraybuffer"
	case TypeNativeFunction:
		return "function"
	case TypeForeign:
		return "foreign"
	case TypeHost:
		return "host"
	}
	return fmt.Sprintf("<unknown type: %d>", vt)
}

// Value is a script value. Numbers and booleans live in payload; every
// other kind points at its heap representation through obj.
type Value struct {
	typ     ValueType
	payload uint64
	obj     unsafe.Pointer
}

type StringObject struct {
	value string
}

type BigIntObject struct {
	value *big.Int
}

// Symbol is a unique symbol. Identity is the pointer.
type Symbol struct {
	Description string
}

type foreignBox struct {
	obj ForeignObject
}

type hostBox struct {
	v any
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	Hole      = Value{typ: TypeHole}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = NumberValue(math.NaN())
)

func NumberValue(value float64) Value {
	return Value{typ: TypeFloatNumber, payload: math.Float64bits(value)}
}

func IntegerValue(value int32) Value {
	return Value{typ: TypeIntegerNumber, payload: uint64(uint32(value))}
}

// Number returns the integer representation when f is an int32 (and not
// negative zero), otherwise a float.
func Number(f float64) Value {
	if f >= math.MinInt32 && f <= math.MaxInt32 && f == math.Trunc(f) && !(f == 0 && math.Signbit(f)) {
		return IntegerValue(int32(f))
	}
	return NumberValue(f)
}

func BooleanValue(value bool) Value {
	if value {
		return True
	}
	return False
}

func NewString(value string) Value {
	return Value{typ: TypeString, obj: unsafe.Pointer(&StringObject{value: value})}
}

func NewBigInt(value *big.Int) Value {
	return Value{typ: TypeBigInt, obj: unsafe.Pointer(&BigIntObject{value: new(big.Int).Set(value)})}
}

// NewSymbol creates a fresh symbol; two calls never return the same symbol.
func NewSymbol(description string) Value {
	return Value{typ: TypeSymbol, obj: unsafe.Pointer(&Symbol{Description: description})}
}

// NewForeign wraps an interop object. Each call creates a distinct value
// identity.
func NewForeign(obj ForeignObject) Value {
	return Value{typ: TypeForeign, obj: unsafe.Pointer(&foreignBox{obj: obj})}
}

// NewHostValue wraps a Go value that scripts can pass around but never
// write into.
func NewHostValue(v any) Value {
	return Value{typ: TypeHost, obj: unsafe.Pointer(&hostBox{v: v})}
}

// ObjectValue converts a heap object back into a Value.
func ObjectValue(o HeapObject) Value {
	switch obj := o.(type) {
	case *PlainObject:
		return Value{typ: TypeObject, obj: unsafe.Pointer(obj)}
	case *ArrayObject:
		return Value{typ: TypeArray, obj: unsafe.Pointer(obj)}
	case *TypedArrayObject:
		return Value{typ: TypeTypedArray, obj: unsafe.Pointer(obj)}
	case *ArrayBufferObject:
		return Value{typ: TypeArrayBuffer, obj: unsafe.Pointer(obj)}
	case *SharedArrayBufferObject:
		return Value{typ: TypeSharedArrayBuffer, obj: unsafe.Pointer(obj)}
	case *NativeFunction:
		return Value{typ: TypeNativeFunction, obj: unsafe.Pointer(obj)}
	}
	return Undefined
}

// --- Type checks ---

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsHole() bool      { return v.typ == TypeHole }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsInteger() bool   { return v.typ == TypeIntegerNumber }
func (v Value) IsFloat() bool     { return v.typ == TypeFloatNumber }
func (v Value) IsNumber() bool    { return v.typ == TypeIntegerNumber || v.typ == TypeFloatNumber }
func (v Value) IsBigInt() bool    { return v.typ == TypeBigInt }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsForeign() bool   { return v.typ == TypeForeign }
func (v Value) IsHost() bool      { return v.typ == TypeHost }

// IsObject reports whether v is any heap object.
func (v Value) IsObject() bool {
	return v.typ >= TypeObject && v.typ <= TypeNativeFunction
}

func (v Value) IsCallable() bool { return v.typ == TypeNativeFunction }

// --- Accessors ---

func (v Value) AsBoolean() bool { return v.payload != 0 }

func (v Value) AsInteger() int32 {
	if v.typ != TypeIntegerNumber {
		panic("value is not an integer")
	}
	return int32(uint32(v.payload))
}

func (v Value) AsFloat() float64 {
	switch v.typ {
	case TypeFloatNumber:
		return math.Float64frombits(v.payload)
	case TypeIntegerNumber:
		return float64(int32(uint32(v.payload)))
	}
	panic("value is not a number")
}

func (v Value) AsBigInt() *big.Int {
	if v.typ != TypeBigInt {
		panic("value is not a bigint")
	}
	return (*BigIntObject)(v.obj).value
}

func (v Value) AsString() string {
	if v.typ != TypeString {
		panic("value is not a string")
	}
	return (*StringObject)(v.obj).value
}

func (v Value) AsSymbol() *Symbol {
	if v.typ != TypeSymbol {
		panic("value is not a symbol")
	}
	return (*Symbol)(v.obj)
}

func (v Value) AsPlainObject() *PlainObject {
	if v.typ == TypeObject {
		return (*PlainObject)(v.obj)
	}
	return nil
}

func (v Value) AsArray() *ArrayObject {
	if v.typ == TypeArray {
		return (*ArrayObject)(v.obj)
	}
	return nil
}

func (v Value) AsTypedArray() *TypedArrayObject {
	if v.typ == TypeTypedArray {
		return (*TypedArrayObject)(v.obj)
	}
	return nil
}

func (v Value) AsArrayBuffer() *ArrayBufferObject {
	if v.typ == TypeArrayBuffer {
		return (*ArrayBufferObject)(v.obj)
	}
	return nil
}

func (v Value) AsSharedArrayBuffer() *SharedArrayBufferObject {
	if v.typ == TypeSharedArrayBuffer {
		return (*SharedArrayBufferObject)(v.obj)
	}
	return nil
}

func (v Value) AsNativeFunction() *NativeFunction {
	if v.typ == TypeNativeFunction {
		return (*NativeFunction)(v.obj)
	}
	return nil
}

func (v Value) AsForeign() ForeignObject {
	if v.typ == TypeForeign {
		return (*foreignBox)(v.obj).obj
	}
	return nil
}

func (v Value) AsHost() any {
	if v.typ == TypeHost {
		return (*hostBox)(v.obj).v
	}
	return nil
}

// AsHeapObject returns the object protocol of v, or nil for primitives.
func (v Value) AsHeapObject() HeapObject {
	switch v.typ {
	case TypeObject:
		return (*PlainObject)(v.obj)
	case TypeArray:
		return (*ArrayObject)(v.obj)
	case TypeTypedArray:
		return (*TypedArrayObject)(v.obj)
	case TypeArrayBuffer:
		return (*ArrayBufferObject)(v.obj)
	case TypeSharedArrayBuffer:
		return (*SharedArrayBufferObject)(v.obj)
	case TypeNativeFunction:
		return (*NativeFunction)(v.obj)
	}
	return nil
}

// TypeName returns the script-level typeof-style name used in messages.
func (v Value) TypeName() string {
	switch v.typ {
	case TypeIntegerNumber, TypeFloatNumber:
		return "number"
	case TypeObject, TypeArray, TypeTypedArray, TypeArrayBuffer, TypeSharedArrayBuffer:
		return "object"
	}
	return v.typ.String()
}

// SameValue implements the SameValue comparison: NaN equals NaN and the
// two zeros differ.
func SameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsFloat(), b.AsFloat()
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		if x == 0 && y == 0 {
			return math.Signbit(x) == math.Signbit(y)
		}
		return x == y
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull, TypeHole:
		return true
	case TypeBoolean:
		return a.payload == b.payload
	case TypeString:
		return a.AsString() == b.AsString()
	case TypeBigInt:
		return a.AsBigInt().Cmp(b.AsBigInt()) == 0
	}
	return a.obj == b.obj
}

// numberToString formats f the way scripts print numbers.
func numberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		return cleanExponentialFormat(strconv.FormatFloat(f, 'e', -1, 64))
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// parseStringToNumber converts a string to a number following ECMAScript rules
// Handles hex (0x), octal (0o), binary (0b), and decimal (including scientific notation)
func parseStringToNumber(s string) float64 {
	str := strings.TrimSpace(s)
	if str == "" {
		return 0
	}

	if len(str) >= 2 && str[0] == '0' {
		base := 0
		switch str[1] {
		case 'x', 'X':
			base = 16
		case 'b', 'B':
			base = 2
		case 'o', 'O':
			base = 8
		}
		if base != 0 {
			if u, err := strconv.ParseUint(str[2:], base, 64); err == nil && !strings.Contains(str[2:], "_") {
				return float64(u)
			}
			return math.NaN()
		}
	}

	// "Infinity" is case-sensitive, unlike Go's ParseFloat
	switch str {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	for i := 0; i < len(str); i++ {
		c := str[i]
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(str, 64)
	if err == nil {
		return f
	}
	if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
		return f
	}
	return math.NaN()
}
