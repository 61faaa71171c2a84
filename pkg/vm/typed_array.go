package vm

import (
	"encoding/binary"
	"math"
	"math/big"
	"sync"
	"unsafe"

	"elemwrite/pkg/errors"
)

// TypedArrayKind represents the different typed array types
type TypedArrayKind uint8

const (
	TypedArrayInt8 TypedArrayKind = iota
	TypedArrayUint8
	TypedArrayUint8Clamped
	TypedArrayInt16
	TypedArrayUint16
	TypedArrayInt32
	TypedArrayUint32
	TypedArrayFloat32
	TypedArrayFloat64
	TypedArrayBigInt64
	TypedArrayBigUint64
)

// TypedArrayKinds lists every kind in declaration order.
var TypedArrayKinds = []TypedArrayKind{
	TypedArrayInt8, TypedArrayUint8, TypedArrayUint8Clamped,
	TypedArrayInt16, TypedArrayUint16, TypedArrayInt32, TypedArrayUint32,
	TypedArrayFloat32, TypedArrayFloat64, TypedArrayBigInt64, TypedArrayBigUint64,
}

// BytesPerElement returns the element width of kind.
func (kind TypedArrayKind) BytesPerElement() int {
	switch kind {
	case TypedArrayInt8, TypedArrayUint8, TypedArrayUint8Clamped:
		return 1
	case TypedArrayInt16, TypedArrayUint16:
		return 2
	case TypedArrayInt32, TypedArrayUint32, TypedArrayFloat32:
		return 4
	case TypedArrayFloat64, TypedArrayBigInt64, TypedArrayBigUint64:
		return 8
	default:
		return 0
	}
}

// Name returns the constructor name for this TypedArray kind
func (kind TypedArrayKind) Name() string {
	switch kind {
	case TypedArrayInt8:
		return "Int8Array"
	case TypedArrayUint8:
		return "Uint8Array"
	case TypedArrayUint8Clamped:
		return "Uint8ClampedArray"
	case TypedArrayInt16:
		return "Int16Array"
	case TypedArrayUint16:
		return "Uint16Array"
	case TypedArrayInt32:
		return "Int32Array"
	case TypedArrayUint32:
		return "Uint32Array"
	case TypedArrayFloat32:
		return "Float32Array"
	case TypedArrayFloat64:
		return "Float64Array"
	case TypedArrayBigInt64:
		return "BigInt64Array"
	case TypedArrayBigUint64:
		return "BigUint64Array"
	default:
		return "TypedArray"
	}
}

// IsBigInt reports whether elements of kind are BigInts.
func (kind TypedArrayKind) IsBigInt() bool {
	return kind == TypedArrayBigInt64 || kind == TypedArrayBigUint64
}

// TypedArrayKindByName resolves a constructor name such as "Int8Array".
func TypedArrayKindByName(name string) (TypedArrayKind, bool) {
	for _, k := range TypedArrayKinds {
		if k.Name() == name {
			return k, true
		}
	}
	return 0, false
}

// BufferData is implemented by ArrayBuffer and SharedArrayBuffer.
type BufferData interface {
	GetData() []byte
	IsDetached() bool
	ByteLength() int

	mutex() *sync.Mutex
	// dataLocked and detachedLocked require the buffer mutex.
	dataLocked() []byte
	detachedLocked() bool
}

// ArrayBufferObject represents a raw binary data buffer
type ArrayBufferObject struct {
	PlainObject
	mu       sync.Mutex // guards data and detached
	data     []byte
	detached bool
}

// GetData returns the underlying byte slice
func (ab *ArrayBufferObject) GetData() []byte {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.data
}

// IsDetached returns whether the buffer has been detached
func (ab *ArrayBufferObject) IsDetached() bool {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return ab.detached
}

func (ab *ArrayBufferObject) ByteLength() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.data)
}

// Detach releases the buffer's memory. Every view over it rejects later
// writes.
func (ab *ArrayBufferObject) Detach() {
	ab.mu.Lock()
	ab.detached = true
	ab.data = nil
	ab.mu.Unlock()
}

func (ab *ArrayBufferObject) mutex() *sync.Mutex   { return &ab.mu }
func (ab *ArrayBufferObject) dataLocked() []byte   { return ab.data }
func (ab *ArrayBufferObject) detachedLocked() bool { return ab.detached }

// SharedArrayBufferObject represents a shared binary data buffer. It can
// never be detached.
type SharedArrayBufferObject struct {
	PlainObject
	mu   sync.Mutex
	data []byte
}

// IsDetached always returns false for SharedArrayBuffer (cannot be detached)
func (sab *SharedArrayBufferObject) IsDetached() bool { return false }

// GetData returns the underlying byte slice
func (sab *SharedArrayBufferObject) GetData() []byte { return sab.data }

// ByteLength returns the length in bytes
func (sab *SharedArrayBufferObject) ByteLength() int { return len(sab.data) }

func (sab *SharedArrayBufferObject) mutex() *sync.Mutex   { return &sab.mu }
func (sab *SharedArrayBufferObject) dataLocked() []byte   { return sab.data }
func (sab *SharedArrayBufferObject) detachedLocked() bool { return false }

// TypedArrayObject represents a typed view into an ArrayBuffer or SharedArrayBuffer
type TypedArrayObject struct {
	PlainObject
	buffer     BufferData
	byteOffset int
	length     int // number of elements, fixed at construction
	kind       TypedArrayKind
	view       *typedView
}

// typedView is the storage representation of a typed array. It is
// created once per array and never replaced.
type typedView struct {
	ta *TypedArrayObject
}

func (v *typedView) Kind() StorageKind { return StorageTypedView }

func (v *typedView) Get(index int64) (Value, bool) {
	if index < 0 || index >= int64(v.ta.length) {
		return Undefined, false
	}
	return v.ta.GetElement(int(index)), true
}

func (v *typedView) Holes() int { return 0 }

func (v *typedView) Bounds() (int64, int64) { return 0, int64(v.ta.length) }

func (v *typedView) Each(fn func(int64, Value)) {
	for i := 0; i < v.ta.length; i++ {
		fn(int64(i), v.ta.GetElement(i))
	}
}

// NewArrayBuffer creates a zero-filled buffer of size bytes.
func (r *Realm) NewArrayBuffer(size int) (Value, error) {
	if size < 0 {
		return Undefined, errors.NewRangeError(errors.Position{}, "Invalid array buffer length")
	}
	ab := &ArrayBufferObject{data: make([]byte, size)}
	ab.init(r, ClassArrayBuffer, r.ArrayBufferPrototype)
	return Value{typ: TypeArrayBuffer, obj: unsafe.Pointer(ab)}, nil
}

// NewSharedArrayBuffer creates a new SharedArrayBuffer with the given size
func (r *Realm) NewSharedArrayBuffer(size int) (Value, error) {
	if size < 0 {
		return Undefined, errors.NewRangeError(errors.Position{}, "Invalid array buffer length")
	}
	sab := &SharedArrayBufferObject{data: make([]byte, size)}
	sab.init(r, ClassSharedArrayBuffer, r.SharedArrayBufferPrototype)
	return Value{typ: TypeSharedArrayBuffer, obj: unsafe.Pointer(sab)}, nil
}

// NewTypedArray creates a typed array of length elements over a fresh
// buffer.
func (r *Realm) NewTypedArray(kind TypedArrayKind, length int) (Value, error) {
	if length < 0 {
		return Undefined, errors.NewRangeError(errors.Position{}, "Invalid typed array length: %d", length)
	}
	buf, err := r.NewArrayBuffer(length * kind.BytesPerElement())
	if err != nil {
		return Undefined, err
	}
	return r.NewTypedArrayOnBuffer(kind, buf, 0, length)
}

// NewTypedArrayOnBuffer creates a view over an existing ArrayBuffer or
// SharedArrayBuffer. A negative length spans the rest of the buffer.
func (r *Realm) NewTypedArrayOnBuffer(kind TypedArrayKind, buffer Value, byteOffset, length int) (Value, error) {
	var data BufferData
	switch {
	case buffer.AsArrayBuffer() != nil:
		data = buffer.AsArrayBuffer()
	case buffer.AsSharedArrayBuffer() != nil:
		data = buffer.AsSharedArrayBuffer()
	default:
		return Undefined, errors.NewTypeError(errors.Position{}, "%s requires an ArrayBuffer", kind.Name())
	}
	if data.IsDetached() {
		return Undefined, errors.NewTypeError(errors.Position{}, "Cannot construct %s on a detached ArrayBuffer", kind.Name())
	}
	bpe := kind.BytesPerElement()
	if byteOffset < 0 || byteOffset%bpe != 0 {
		return Undefined, errors.NewRangeError(errors.Position{}, "start offset of %s should be a multiple of %d", kind.Name(), bpe)
	}
	size := data.ByteLength()
	if length < 0 {
		if (size-byteOffset)%bpe != 0 || byteOffset > size {
			return Undefined, errors.NewRangeError(errors.Position{}, "byte length of %s should be a multiple of %d", kind.Name(), bpe)
		}
		length = (size - byteOffset) / bpe
	}
	if byteOffset+length*bpe > size {
		return Undefined, errors.NewRangeError(errors.Position{}, "Invalid typed array length: %d", length)
	}

	ta := &TypedArrayObject{buffer: data, byteOffset: byteOffset, length: length, kind: kind}
	ta.view = &typedView{ta: ta}
	ta.init(r, ClassTypedArray, r.TypedArrayPrototype)
	return Value{typ: TypeTypedArray, obj: unsafe.Pointer(ta)}, nil
}

func (ta *TypedArrayObject) Kind() TypedArrayKind { return ta.kind }
func (ta *TypedArrayObject) Length() int          { return ta.length }
func (ta *TypedArrayObject) ByteOffset() int      { return ta.byteOffset }
func (ta *TypedArrayObject) Buffer() BufferData   { return ta.buffer }
func (ta *TypedArrayObject) IsDetached() bool     { return ta.buffer.IsDetached() }

func (ta *TypedArrayObject) hasIndexedProperties() bool {
	return ta.length > 0 && !ta.IsDetached()
}

// GetElement gets an element at the given index. Out-of-range indices and
// detached buffers read as undefined.
func (ta *TypedArrayObject) GetElement(index int) Value {
	mu := ta.buffer.mutex()
	mu.Lock()
	defer mu.Unlock()

	if index < 0 || index >= ta.length || ta.buffer.detachedLocked() {
		return Undefined
	}

	offset := ta.byteOffset + index*ta.kind.BytesPerElement()
	data := ta.buffer.dataLocked()[offset:]

	switch ta.kind {
	case TypedArrayInt8:
		return IntegerValue(int32(int8(data[0])))
	case TypedArrayUint8, TypedArrayUint8Clamped:
		return IntegerValue(int32(data[0]))
	case TypedArrayInt16:
		return IntegerValue(int32(int16(binary.LittleEndian.Uint16(data))))
	case TypedArrayUint16:
		return IntegerValue(int32(binary.LittleEndian.Uint16(data)))
	case TypedArrayInt32:
		return IntegerValue(int32(binary.LittleEndian.Uint32(data)))
	case TypedArrayUint32:
		return Number(float64(binary.LittleEndian.Uint32(data)))
	case TypedArrayFloat32:
		return NumberValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(data))))
	case TypedArrayFloat64:
		return NumberValue(math.Float64frombits(binary.LittleEndian.Uint64(data)))
	case TypedArrayBigInt64:
		return NewBigInt(big.NewInt(int64(binary.LittleEndian.Uint64(data))))
	case TypedArrayBigUint64:
		return NewBigInt(new(big.Int).SetUint64(binary.LittleEndian.Uint64(data)))
	}
	return Undefined
}

// setIndex is the typed element write: coerce the value first (this may
// run script code and may fail), then reject detached buffers, then drop
// out-of-range indices silently.
func (ta *TypedArrayObject) setIndex(index int64, v Value) error {
	var bits uint64
	if ta.kind.IsBigInt() {
		b, err := ToBigInt(v)
		if err != nil {
			return err
		}
		bits = ToBigUint64(b)
	} else {
		n, err := ToNumber(v)
		if err != nil {
			return err
		}
		bits = encodeNumber(ta.kind, n)
	}
	return ta.storeBits(index, bits)
}

// encodeNumber converts n to the little-endian bit pattern of kind.
func encodeNumber(kind TypedArrayKind, n float64) uint64 {
	switch kind {
	case TypedArrayInt8:
		return uint64(uint8(ToInt8(n)))
	case TypedArrayUint8:
		return uint64(ToUint8(n))
	case TypedArrayUint8Clamped:
		return uint64(ToUint8Clamp(n))
	case TypedArrayInt16:
		return uint64(uint16(ToInt16(n)))
	case TypedArrayUint16:
		return uint64(ToUint16(n))
	case TypedArrayInt32:
		return uint64(uint32(ToInt32(n)))
	case TypedArrayUint32:
		return uint64(ToUint32(n))
	case TypedArrayFloat32:
		return uint64(math.Float32bits(float32(n)))
	case TypedArrayFloat64:
		return math.Float64bits(n)
	}
	return 0
}

func (ta *TypedArrayObject) storeBits(index int64, bits uint64) error {
	mu := ta.buffer.mutex()
	mu.Lock()
	defer mu.Unlock()

	if ta.buffer.detachedLocked() {
		return errors.NewTypeError(errors.Position{}, "Cannot perform %s element write on a detached ArrayBuffer", ta.kind.Name())
	}
	if index < 0 || index >= int64(ta.length) {
		return nil
	}
	offset := ta.byteOffset + int(index)*ta.kind.BytesPerElement()
	data := ta.buffer.dataLocked()[offset:]
	switch ta.kind.BytesPerElement() {
	case 1:
		data[0] = byte(bits)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(bits))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(bits))
	case 8:
		binary.LittleEndian.PutUint64(data, bits)
	}
	return nil
}

// setNumeric handles a canonical numeric key that is not an array index,
// or is one written through [[Set]]: coerce, then store if n addresses an
// element.
func (ta *TypedArrayObject) setNumeric(n float64, v Value) error {
	if isIntegerIndex(n) && n <= maxArrayIndex {
		return ta.setIndex(int64(n), v)
	}
	if ta.kind.IsBigInt() {
		_, err := ToBigInt(v)
		return err
	}
	_, err := ToNumber(v)
	return err
}

func (ta *TypedArrayObject) validIndex(n float64) bool {
	return isIntegerIndex(n) && n < float64(ta.length) && !ta.IsDetached()
}

// --- Object protocol (integer-indexed exotic object) ---

func (ta *TypedArrayObject) GetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if key.IsString() {
		if n, ok := canonicalNumericIndex(key.name); ok {
			if !ta.validIndex(n) {
				return PropertyDescriptor{}, false
			}
			return DataDescriptor(ta.GetElement(int(n))), true
		}
	}
	return ta.PlainObject.GetOwnProperty(key)
}

func (ta *TypedArrayObject) DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if key.IsString() {
		if n, ok := canonicalNumericIndex(key.name); ok {
			if !ta.validIndex(n) || desc.Accessor || !desc.Writable || !desc.Enumerable || !desc.Configurable {
				return false, nil
			}
			if err := ta.setIndex(int64(n), desc.Value); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return ta.PlainObject.DefineOwnProperty(key, desc)
}

func (ta *TypedArrayObject) Get(key PropertyKey, receiver Value) (Value, error) {
	if key.IsString() {
		if n, ok := canonicalNumericIndex(key.name); ok {
			if !ta.validIndex(n) {
				return Undefined, nil
			}
			return ta.GetElement(int(n)), nil
		}
	}
	return ordinaryGet(ta, key, receiver)
}

// Set never creates named properties for canonical numeric keys: writes
// through the array itself coerce and store (or drop), writes through a
// different receiver fall back to the ordinary algorithm only for valid
// indices.
func (ta *TypedArrayObject) Set(key PropertyKey, value, receiver Value) (bool, error) {
	if key.IsString() {
		if n, ok := canonicalNumericIndex(key.name); ok {
			if receiver.AsTypedArray() == ta {
				return true, ta.setNumeric(n, value)
			}
			if !ta.validIndex(n) {
				return true, nil
			}
		}
	}
	return ordinarySet(ta, key, value, receiver)
}

func (ta *TypedArrayObject) Delete(key PropertyKey) bool {
	if key.IsString() {
		if n, ok := canonicalNumericIndex(key.name); ok {
			return !ta.validIndex(n)
		}
	}
	return ta.PlainObject.Delete(key)
}
