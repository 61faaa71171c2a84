package vm

import (
	"unsafe"

	"elemwrite/pkg/errors"
)

// NativeFunc is the Go implementation of a callable value.
type NativeFunc func(this Value, args []Value) (Value, error)

// NativeFunction is the only callable object kind; setters, getters and
// valueOf hooks are all native functions.
type NativeFunction struct {
	PlainObject
	name string
	fn   NativeFunc
}

// NewNativeFunction creates a function object inheriting from the realm's
// Function prototype.
func (r *Realm) NewNativeFunction(name string, fn NativeFunc) Value {
	f := &NativeFunction{name: name, fn: fn}
	f.init(r, ClassFunction, r.FunctionPrototype)
	return Value{typ: TypeNativeFunction, obj: unsafe.Pointer(f)}
}

func (f *NativeFunction) Name() string { return f.name }

// Call invokes fn with this and args.
func Call(fn, this Value, args ...Value) (Value, error) {
	f := fn.AsNativeFunction()
	if f == nil {
		return Undefined, errors.NewTypeError(errors.Position{}, "%s is not a function", Inspect(fn))
	}
	return f.fn(this, args)
}

// arg returns args[i] or Undefined.
func arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}
