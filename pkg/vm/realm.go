package vm

import (
	"log/slog"
	"unsafe"

	"elemwrite/pkg/config"
	"elemwrite/pkg/errors"
)

// Realm owns the intrinsic prototypes, the write-path assumptions and the
// options every call site created from it shares.
type Realm struct {
	ObjectPrototype            Value
	FunctionPrototype          Value
	ArrayPrototype             Value
	TypedArrayPrototype        Value
	ArrayBufferPrototype       Value
	SharedArrayBufferPrototype Value
	BooleanPrototype           Value
	NumberPrototype            Value
	StringPrototype            Value
	SymbolPrototype            Value
	BigIntPrototype            Value
	ErrorPrototype             Value

	assumptions *Assumptions
	options     config.Options
	logger      *slog.Logger
}

// NewRealm creates a realm. A nil logger discards all output.
func NewRealm(opts config.Options, logger *slog.Logger) *Realm {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Realm{
		options:     opts,
		logger:      logger,
		assumptions: newAssumptions(logger),
	}

	r.ObjectPrototype = r.newPlain(ClassObject, Null)
	r.FunctionPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.ArrayPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.TypedArrayPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.ArrayBufferPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.SharedArrayBufferPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.BooleanPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.NumberPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.StringPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.SymbolPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.BigIntPrototype = r.newPlain(ClassObject, r.ObjectPrototype)
	r.ErrorPrototype = r.newPlain(ClassObject, r.ObjectPrototype)

	r.installObjectPrototype()
	for _, wp := range []struct {
		proto Value
		class ObjectClass
	}{
		{r.BooleanPrototype, ClassBoolean},
		{r.NumberPrototype, ClassNumber},
		{r.StringPrototype, ClassString},
		{r.SymbolPrototype, ClassSymbol},
		{r.BigIntPrototype, ClassBigInt},
	} {
		r.installWrapperPrototype(wp.proto, wp.class)
	}
	return r
}

func (r *Realm) Options() config.Options    { return r.options }
func (r *Realm) Logger() *slog.Logger       { return r.logger }
func (r *Realm) Assumptions() *Assumptions { return r.assumptions }

func (r *Realm) newPlain(class ObjectClass, proto Value) Value {
	o := &PlainObject{}
	o.init(r, class, proto)
	return Value{typ: TypeObject, obj: unsafe.Pointer(o)}
}

// NewObject creates an empty ordinary object inheriting from Object.prototype.
func (r *Realm) NewObject() Value {
	return r.newPlain(ClassObject, r.ObjectPrototype)
}

// NewObjectWithProto creates an empty ordinary object with the given
// prototype (an object or Null).
func (r *Realm) NewObjectWithProto(proto Value) Value {
	return r.newPlain(ClassObject, proto)
}

// NewError creates an Error-class object with a message property.
func (r *Realm) NewError(message string) Value {
	v := r.newPlain(ClassError, r.ErrorPrototype)
	v.AsPlainObject().SetOwn("message", NewString(message))
	return v
}

// NewArguments creates an arguments-like object: indexed properties and a
// length, but no array storage.
func (r *Realm) NewArguments(values ...Value) Value {
	v := r.newPlain(ClassArguments, r.ObjectPrototype)
	o := v.AsPlainObject()
	for i, e := range values {
		o.defineOwn(IndexKey(int64(i)), DataDescriptor(e))
	}
	o.defineOwn(NewStringKey("length"), PropertyDescriptor{Value: IntegerValue(int32(len(values))), Writable: true, Configurable: true})
	return v
}

func (r *Realm) installObjectPrototype() {
	proto := r.ObjectPrototype.AsPlainObject()
	proto.SetOwn("valueOf", r.NewNativeFunction("valueOf", func(this Value, args []Value) (Value, error) {
		return this, nil
	}))
	proto.SetOwn("toString", r.NewNativeFunction("toString", func(this Value, args []Value) (Value, error) {
		if ho := this.AsHeapObject(); ho != nil {
			return NewString("[object " + ho.Class().String() + "]"), nil
		}
		return NewString("[object " + this.TypeName() + "]"), nil
	}))
}

// installWrapperPrototype gives a wrapper prototype valueOf and toString
// methods that unwrap the primitive of a wrapper of the right class.
func (r *Realm) installWrapperPrototype(protoVal Value, class ObjectClass) {
	unwrap := func(this Value) (Value, error) {
		if o := this.AsPlainObject(); o != nil && o.class == class {
			return o.primitive, nil
		}
		if prim := this; !prim.IsObject() && !prim.IsNullish() {
			return prim, nil
		}
		return Undefined, errors.NewTypeError(errors.Position{}, "%s.prototype.valueOf requires that 'this' be a %s", class, class)
	}
	proto := protoVal.AsPlainObject()
	proto.SetOwn("valueOf", r.NewNativeFunction("valueOf", func(this Value, args []Value) (Value, error) {
		return unwrap(this)
	}))
	proto.SetOwn("toString", r.NewNativeFunction("toString", func(this Value, args []Value) (Value, error) {
		prim, err := unwrap(this)
		if err != nil {
			return Undefined, err
		}
		if prim.IsSymbol() {
			return NewString("Symbol(" + prim.AsSymbol().Description + ")"), nil
		}
		s, err := ToString(prim)
		if err != nil {
			return Undefined, err
		}
		return NewString(s), nil
	}))
}

// ToObject converts v to an object, wrapping primitives.
func (r *Realm) ToObject(v Value) (HeapObject, error) {
	var class ObjectClass
	var proto Value
	switch v.typ {
	case TypeUndefined, TypeNull:
		return nil, errors.NewTypeError(errors.Position{}, "Cannot convert %s to object", v.typ)
	case TypeBoolean:
		class, proto = ClassBoolean, r.BooleanPrototype
	case TypeIntegerNumber, TypeFloatNumber:
		class, proto = ClassNumber, r.NumberPrototype
	case TypeString:
		class, proto = ClassString, r.StringPrototype
	case TypeSymbol:
		class, proto = ClassSymbol, r.SymbolPrototype
	case TypeBigInt:
		class, proto = ClassBigInt, r.BigIntPrototype
	default:
		if ho := v.AsHeapObject(); ho != nil {
			return ho, nil
		}
		return nil, errors.NewTypeError(errors.Position{}, "Cannot convert %s value to object", v.TypeName())
	}
	o := &PlainObject{primitive: v}
	o.init(r, class, proto)
	return o, nil
}
