package vm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"elemwrite/pkg/errors"
)

// ObjectClass is the closed set of object classes. The array-type
// detection cache is keyed on it.
type ObjectClass uint8

const (
	ClassObject ObjectClass = iota
	ClassArray
	ClassTypedArray
	ClassArrayBuffer
	ClassSharedArrayBuffer
	ClassFunction
	ClassBoolean
	ClassNumber
	ClassString
	ClassSymbol
	ClassBigInt
	ClassError
	ClassArguments
)

func (c ObjectClass) String() string {
	switch c {
	case ClassObject:
		return "Object"
	case ClassArray:
		return "Array"
	case ClassTypedArray:
		return "TypedArray"
	case ClassArrayBuffer:
		return "ArrayBuffer"
	case ClassSharedArrayBuffer:
		return "SharedArrayBuffer"
	case ClassFunction:
		return "Function"
	case ClassBoolean:
		return "Boolean"
	case ClassNumber:
		return "Number"
	case ClassString:
		return "String"
	case ClassSymbol:
		return "Symbol"
	case ClassBigInt:
		return "BigInt"
	case ClassError:
		return "Error"
	case ClassArguments:
		return "Arguments"
	}
	return fmt.Sprintf("ObjectClass(%d)", uint8(c))
}

// HeapObject is the object protocol used by the generic property write.
// Every heap object embeds a PlainObject, which base returns.
type HeapObject interface {
	Class() ObjectClass
	Prototype() Value
	SetPrototype(proto Value) bool
	IsExtensible() bool
	PreventExtensions()
	GetOwnProperty(key PropertyKey) (PropertyDescriptor, bool)
	// DefineOwnProperty installs a complete descriptor. The error is only
	// non-nil when defining an element ran a failing value coercion.
	DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) (bool, error)
	Get(key PropertyKey, receiver Value) (Value, error)
	Set(key PropertyKey, value, receiver Value) (bool, error)
	Delete(key PropertyKey) bool

	base() *PlainObject
}

// PropertyDescriptor is a complete data or accessor descriptor.
type PropertyDescriptor struct {
	Value        Value
	Getter       Value
	Setter       Value
	Accessor     bool
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// DataDescriptor returns a writable, enumerable, configurable data
// descriptor, the shape CreateDataProperty uses.
func DataDescriptor(v Value) PropertyDescriptor {
	return PropertyDescriptor{Value: v, Writable: true, Enumerable: true, Configurable: true}
}

// PlainObject is an ordinary object. Wrapper objects (Boolean, Number,
// String, Symbol, BigInt) are PlainObjects with a class and a primitive.
type PlainObject struct {
	mu         sync.RWMutex
	class      ObjectClass
	prototype  Value
	props      map[PropertyKey]*PropertyDescriptor
	keys       []PropertyKey
	extensible bool
	primitive  Value

	realm       *Realm
	prototypeOf atomic.Bool // some object uses this one as its prototype
}

func (o *PlainObject) init(r *Realm, class ObjectClass, proto Value) {
	o.realm = r
	o.class = class
	o.prototype = proto
	o.extensible = true
	markAsPrototype(proto)
}

func (o *PlainObject) base() *PlainObject { return o }

func (o *PlainObject) Class() ObjectClass { return o.class }

// PrimitiveValue returns the wrapped primitive of a wrapper object.
func (o *PlainObject) PrimitiveValue() Value { return o.primitive }

func (o *PlainObject) Prototype() Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.prototype
}

func (o *PlainObject) SetPrototype(proto Value) bool {
	if !proto.IsNull() && !proto.IsObject() {
		return false
	}
	for p := proto; p.IsObject(); {
		ho := p.AsHeapObject()
		if ho.base() == o {
			return false
		}
		p = ho.Prototype()
	}

	o.mu.Lock()
	if SameValue(o.prototype, proto) {
		o.mu.Unlock()
		return true
	}
	if !o.extensible {
		o.mu.Unlock()
		return false
	}
	o.prototype = proto
	o.mu.Unlock()

	markAsPrototype(proto)
	return true
}

func (o *PlainObject) IsExtensible() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.extensible
}

func (o *PlainObject) PreventExtensions() {
	o.mu.Lock()
	o.extensible = false
	o.mu.Unlock()
}

// Freeze makes every own property non-configurable and data properties
// non-writable, then prevents extensions.
func (o *PlainObject) Freeze() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.props {
		p.Configurable = false
		if !p.Accessor {
			p.Writable = false
		}
	}
	o.extensible = false
}

func (o *PlainObject) GetOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if o.class == ClassString {
		if d, ok := o.stringOwnProperty(key); ok {
			return d, true
		}
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.props[key]
	if !ok {
		return PropertyDescriptor{}, false
	}
	return *p, true
}

// stringOwnProperty exposes the read-only index and length properties of a
// String wrapper.
func (o *PlainObject) stringOwnProperty(key PropertyKey) (PropertyDescriptor, bool) {
	if !key.IsString() || !o.primitive.IsString() {
		return PropertyDescriptor{}, false
	}
	units := utf16.Encode([]rune(o.primitive.AsString()))
	if key.name == "length" {
		return PropertyDescriptor{Value: IntegerValue(int32(len(units)))}, true
	}
	if idx, ok := key.ArrayIndex(); ok && idx < int64(len(units)) {
		ch := string(utf16.Decode(units[idx : idx+1]))
		return PropertyDescriptor{Value: NewString(ch), Enumerable: true}, true
	}
	return PropertyDescriptor{}, false
}

func (o *PlainObject) DefineOwnProperty(key PropertyKey, desc PropertyDescriptor) (bool, error) {
	if o.class == ClassString {
		if cur, ok := o.stringOwnProperty(key); ok {
			return !desc.Accessor && !desc.Writable && !desc.Configurable &&
				desc.Enumerable == cur.Enumerable && SameValue(desc.Value, cur.Value), nil
		}
	}
	return o.defineOwn(key, desc), nil
}

// defineOwn is ValidateAndApplyPropertyDescriptor for complete
// descriptors.
func (o *PlainObject) defineOwn(key PropertyKey, desc PropertyDescriptor) bool {
	o.mu.Lock()
	cur, exists := o.props[key]
	if !exists {
		if !o.extensible {
			o.mu.Unlock()
			return false
		}
		if o.props == nil {
			o.props = make(map[PropertyKey]*PropertyDescriptor)
		}
		d := desc
		o.props[key] = &d
		o.keys = append(o.keys, key)
		o.mu.Unlock()

		if _, isIndex := key.ArrayIndex(); isIndex && o.prototypeOf.Load() && o.realm != nil {
			o.realm.assumptions.invalidatePrototypeElements(o.class)
		}
		return true
	}
	defer o.mu.Unlock()

	if !cur.Configurable {
		if desc.Configurable || desc.Accessor != cur.Accessor || desc.Enumerable != cur.Enumerable {
			return false
		}
		if cur.Accessor {
			if !SameValue(desc.Getter, cur.Getter) || !SameValue(desc.Setter, cur.Setter) {
				return false
			}
		} else if !cur.Writable && (desc.Writable || !SameValue(desc.Value, cur.Value)) {
			return false
		}
	}
	*cur = desc
	return true
}

func (o *PlainObject) Delete(key PropertyKey) bool {
	if o.class == ClassString {
		if _, ok := o.stringOwnProperty(key); ok {
			return false
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.props[key]
	if !ok {
		return true
	}
	if !p.Configurable {
		return false
	}
	delete(o.props, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

func (o *PlainObject) Get(key PropertyKey, receiver Value) (Value, error) {
	return ordinaryGet(o, key, receiver)
}

func (o *PlainObject) Set(key PropertyKey, value, receiver Value) (bool, error) {
	return ordinarySet(o, key, value, receiver)
}

// OwnKeys returns own string and symbol keys in insertion order.
func (o *PlainObject) OwnKeys() []PropertyKey {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]PropertyKey(nil), o.keys...)
}

// SetOwn creates or overwrites a plain data property.
func (o *PlainObject) SetOwn(name string, v Value) bool {
	return o.defineOwn(NewStringKey(name), DataDescriptor(v))
}

// GetOwn returns the value of an own data property.
func (o *PlainObject) GetOwn(name string) (Value, bool) {
	d, ok := o.GetOwnProperty(NewStringKey(name))
	if !ok || d.Accessor {
		return Undefined, false
	}
	return d.Value, true
}

// DefineAccessor installs a configurable, enumerable accessor property.
// Either function may be Undefined.
func (o *PlainObject) DefineAccessor(key PropertyKey, getter, setter Value) bool {
	return o.defineOwn(key, PropertyDescriptor{
		Getter: getter, Setter: setter, Accessor: true, Enumerable: true, Configurable: true,
	})
}

func (o *PlainObject) hasIndexedProperties() bool {
	if o.class == ClassString && o.primitive.IsString() && o.primitive.AsString() != "" {
		return true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, k := range o.keys {
		if _, ok := k.ArrayIndex(); ok {
			return true
		}
	}
	return false
}

// indexed is implemented by objects whose elements live outside the
// property map.
type indexed interface {
	hasIndexedProperties() bool
}

// markAsPrototype flags proto as used by some object. The first time an
// object with indexed properties becomes a prototype, the realm's
// no-prototype-elements assumption is invalidated.
func markAsPrototype(proto Value) {
	ho := proto.AsHeapObject()
	if ho == nil {
		return
	}
	b := ho.base()
	if b.prototypeOf.Swap(true) || b.realm == nil {
		return
	}
	if ix, ok := ho.(indexed); ok && ix.hasIndexedProperties() {
		b.realm.assumptions.invalidatePrototypeElements(ho.Class())
	}
}

// --- Ordinary object algorithms ---

func ordinaryGet(o HeapObject, key PropertyKey, receiver Value) (Value, error) {
	for {
		desc, ok := o.GetOwnProperty(key)
		if ok {
			if !desc.Accessor {
				return desc.Value, nil
			}
			if !desc.Getter.IsCallable() {
				return Undefined, nil
			}
			return Call(desc.Getter, receiver)
		}
		parent := o.Prototype().AsHeapObject()
		if parent == nil {
			return Undefined, nil
		}
		if _, plain := parent.(*PlainObject); !plain {
			return parent.Get(key, receiver)
		}
		o = parent
	}
}

// ordinarySet is OrdinarySet: it walks the prototype chain of o for key,
// calls a setter if one is found and otherwise creates or updates a data
// property on receiver.
func ordinarySet(o HeapObject, key PropertyKey, value, receiver Value) (bool, error) {
	desc, ok := o.GetOwnProperty(key)
	if !ok {
		if parent := o.Prototype().AsHeapObject(); parent != nil {
			return parent.Set(key, value, receiver)
		}
		desc = DataDescriptor(Undefined)
	}

	if desc.Accessor {
		if !desc.Setter.IsCallable() {
			return false, nil
		}
		if _, err := Call(desc.Setter, receiver, value); err != nil {
			return false, err
		}
		return true, nil
	}

	if !desc.Writable {
		return false, nil
	}
	recv := receiver.AsHeapObject()
	if recv == nil {
		return false, nil
	}
	existing, has := recv.GetOwnProperty(key)
	if has {
		if existing.Accessor || !existing.Writable {
			return false, nil
		}
		existing.Value = value
		return recv.DefineOwnProperty(key, existing)
	}
	return recv.DefineOwnProperty(key, DataDescriptor(value))
}

// HasProperty reports whether key is an own or inherited property of o.
func HasProperty(o HeapObject, key PropertyKey) bool {
	for o != nil {
		if _, ok := o.GetOwnProperty(key); ok {
			return true
		}
		o = o.Prototype().AsHeapObject()
	}
	return false
}

// hasInheritedElement reports whether any prototype of o owns index.
func hasInheritedElement(o HeapObject, index int64) bool {
	proto := o.Prototype().AsHeapObject()
	if proto == nil {
		return false
	}
	return HasProperty(proto, IndexKey(index))
}

// SetWithReceiver runs the generic property write. A false result raises a
// TypeError in strict mode and is silently dropped otherwise.
func SetWithReceiver(target HeapObject, key PropertyKey, value, receiver Value, strict bool) error {
	ok, err := target.Set(key, value, receiver)
	if err != nil {
		return err
	}
	if !ok && strict {
		return errors.NewTypeError(errors.Position{}, "Cannot assign to read only property '%s' of %s", key, describe(ObjectValue(target)))
	}
	return nil
}

// describe renders v for error messages without running script code.
func describe(v Value) string {
	switch v.typ {
	case TypeString:
		return fmt.Sprintf("string '%s'", v.AsString())
	case TypeObject, TypeArray, TypeTypedArray, TypeArrayBuffer, TypeSharedArrayBuffer, TypeNativeFunction:
		return "object"
	case TypeUndefined, TypeNull:
		return v.typ.String()
	}
	return Inspect(v)
}
