package vm

import (
	stderrors "errors"
	"math/big"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"elemwrite/pkg/errors"
)

// ForeignObject is a value owned by another runtime. Writes reach it
// through two address forms: named members and integer-indexed elements.
type ForeignObject interface {
	IsNull() bool
	WriteMember(name string, value any) error
	WriteArrayElement(index int64, value any) error
}

// HostObject is a foreign object that exposes invocable members. In
// compatibility mode an unknown member write is retried through a
// "setX" method.
type HostObject interface {
	ForeignObject
	IsHostObject() bool
	IsMemberInvocable(name string) bool
	InvokeMember(name string, args ...any) (any, error)
}

// Errors a ForeignObject reports. ErrUnknownIdentifier and
// ErrInvalidArrayIndex turn the write into a no-op; any other error is
// raised as a TypeError.
var (
	ErrUnknownIdentifier  = stderrors.New("unknown identifier")
	ErrInvalidArrayIndex  = stderrors.New("invalid array index")
	ErrUnsupportedType    = stderrors.New("unsupported type")
	ErrUnsupportedMessage = stderrors.New("unsupported message")
)

// ExportValue converts a script value for a foreign receiver.
func ExportValue(v Value) any {
	switch v.typ {
	case TypeUndefined, TypeNull, TypeHole:
		return nil
	case TypeBoolean:
		return v.AsBoolean()
	case TypeIntegerNumber:
		return v.AsInteger()
	case TypeFloatNumber:
		return v.AsFloat()
	case TypeString:
		return v.AsString()
	case TypeBigInt:
		return new(big.Int).Set(v.AsBigInt())
	case TypeForeign:
		return v.AsForeign()
	case TypeHost:
		return v.AsHost()
	}
	return v
}

var titleCaser = cases.Upper(language.Und)

// setterName returns "set" followed by name with its first rune upper-cased.
func setterName(name string) string {
	if name == "" {
		return "set"
	}
	r, size := utf8.DecodeRuneInString(name)
	return "set" + titleCaser.String(string(r)) + name[size:]
}

// writeForeign writes value into a foreign receiver.
func (s *CallSite) writeForeign(target Value, idx ElementIndex, value Value) error {
	obj := target.AsForeign()
	if obj.IsNull() {
		return errors.NewTypeError(s.pos, "Cannot set property '%s' of null", idx)
	}
	if !idx.isIndex && !idx.isInt && idx.key.IsSymbol() {
		return nil
	}
	exported := ExportValue(value)

	if idx.isIndex || idx.isInt {
		err := obj.WriteArrayElement(idx.index, exported)
		switch {
		case err == nil, stderrors.Is(err, ErrInvalidArrayIndex):
			return nil
		case stderrors.Is(err, ErrUnknownIdentifier):
			return nil
		}
		return &errors.InteropError{Position: s.pos, Op: "writeArrayElement", Msg: "cannot write element " + idx.String(), Cause: err}
	}

	name := idx.key.Name()
	err := obj.WriteMember(name, exported)
	switch {
	case err == nil, stderrors.Is(err, ErrInvalidArrayIndex):
		return nil
	case stderrors.Is(err, ErrUnknownIdentifier):
		if s.realm.options.CompatSetterInvocation {
			s.invokeSetter(obj, name, exported)
		}
		return nil
	}
	return &errors.InteropError{Position: s.pos, Op: "writeMember", Msg: "cannot write member '" + name + "'", Cause: err}
}

// invokeSetter calls a "setX" host method for an unknown member, if the
// receiver has one. Failures are ignored.
func (s *CallSite) invokeSetter(obj ForeignObject, name string, value any) {
	host, ok := obj.(HostObject)
	if !ok || !host.IsHostObject() {
		return
	}
	method := setterName(name)
	if !host.IsMemberInvocable(method) {
		return
	}
	if _, err := host.InvokeMember(method, value); err != nil {
		s.realm.logger.Debug("setter invocation failed", "method", method, "error", err)
	}
}
