package vm

import (
	stderrors "errors"
	"fmt"
	"testing"

	"elemwrite/pkg/config"
	"elemwrite/pkg/errors"
)

// fakeForeign records every write it receives. Members outside known
// are unknown identifiers when known is set.
type fakeForeign struct {
	null      bool
	known     map[string]bool
	members   map[string]any
	elements  map[int64]any
	memberErr error
	elemErr   error
}

func newFakeForeign() *fakeForeign {
	return &fakeForeign{members: map[string]any{}, elements: map[int64]any{}}
}

func (f *fakeForeign) IsNull() bool { return f.null }

func (f *fakeForeign) WriteMember(name string, value any) error {
	if f.memberErr != nil {
		return f.memberErr
	}
	if f.known != nil && !f.known[name] {
		return fmt.Errorf("member %q: %w", name, ErrUnknownIdentifier)
	}
	f.members[name] = value
	return nil
}

func (f *fakeForeign) WriteArrayElement(index int64, value any) error {
	if f.elemErr != nil {
		return f.elemErr
	}
	f.elements[index] = value
	return nil
}

// fakeHost adds invocable setX methods to fakeForeign.
type fakeHost struct {
	*fakeForeign
	methods map[string]bool
	invoked map[string][]any
}

func (h *fakeHost) IsHostObject() bool                 { return true }
func (h *fakeHost) IsMemberInvocable(name string) bool { return h.methods[name] }
func (h *fakeHost) InvokeMember(name string, args ...any) (any, error) {
	h.invoked[name] = args
	return nil, nil
}

func TestForeignWrite_AddressForms(t *testing.T) {
	r := newTestRealm()
	s := r.NewCallSite(testPos)
	f := newFakeForeign()
	target := NewForeign(f)

	mustWrite(t, s, target, IntegerValue(3), IntegerValue(7))
	mustWrite(t, s, target, IntegerValue(-1), NewString("neg"))
	mustWrite(t, s, target, NewString("name"), NewString("x"))
	mustWrite(t, s, target, NumberValue(2), NumberValue(0.5))
	mustWrite(t, s, target, NewSymbol("s"), True)

	if v := f.elements[3]; v != int32(7) {
		t.Errorf("element 3 = %#v", v)
	}
	if v := f.elements[-1]; v != "neg" {
		t.Errorf("element -1 = %#v", v)
	}
	if v := f.elements[2]; v != 0.5 {
		t.Errorf("element 2 = %#v", v)
	}
	if v := f.members["name"]; v != "x" {
		t.Errorf("member name = %#v", v)
	}
	if len(f.members) != 1 || len(f.elements) != 3 {
		t.Errorf("unexpected writes: members %v, elements %v", f.members, f.elements)
	}
}

func TestForeignWrite_NullReceiver(t *testing.T) {
	r := newTestRealm()
	f := newFakeForeign()
	f.null = true

	err := r.NewCallSite(testPos).WriteElement(NewForeign(f), NewString("a"), IntegerValue(1))
	var te *errors.TypeError
	if !stderrors.As(err, &te) || te.Message() != "Cannot set property 'a' of null" {
		t.Errorf("err = %v", err)
	}
}

func TestForeignWrite_SwallowedErrors(t *testing.T) {
	r := newTestRealm()
	s := r.NewCallSite(testPos, WithStrict())

	f := newFakeForeign()
	f.known = map[string]bool{}
	f.elemErr = fmt.Errorf("index 9: %w", ErrInvalidArrayIndex)
	target := NewForeign(f)

	mustWrite(t, s, target, NewString("missing"), IntegerValue(1))
	mustWrite(t, s, target, IntegerValue(9), IntegerValue(1))
	if len(f.members) != 0 || len(f.elements) != 0 {
		t.Errorf("unexpected writes: %v %v", f.members, f.elements)
	}
}

func TestForeignWrite_OtherErrorsAreTypeErrors(t *testing.T) {
	r := newTestRealm()
	s := r.NewCallSite(testPos)
	f := newFakeForeign()
	f.memberErr = ErrUnsupportedType
	f.elemErr = ErrUnsupportedMessage

	err := s.WriteElement(NewForeign(f), NewString("x"), IntegerValue(1))
	var ie *errors.InteropError
	if !stderrors.As(err, &ie) {
		t.Fatalf("err = %v, want InteropError", err)
	}
	if ie.Op != "writeMember" || ie.Kind() != "TypeError" || ie.Pos() != testPos {
		t.Errorf("error = %+v", ie)
	}
	if !stderrors.Is(err, ErrUnsupportedType) {
		t.Error("cause lost")
	}

	err = s.WriteElement(NewForeign(f), IntegerValue(0), IntegerValue(1))
	if !stderrors.As(err, &ie) || ie.Op != "writeArrayElement" || !stderrors.Is(err, ErrUnsupportedMessage) {
		t.Errorf("element error = %v", err)
	}
}

func TestForeignWrite_CompatSetterInvocation(t *testing.T) {
	for _, compat := range []bool{false, true} {
		r := newTestRealmWith(func(o *config.Options) { o.CompatSetterInvocation = compat })
		f := newFakeForeign()
		f.known = map[string]bool{}
		h := &fakeHost{fakeForeign: f, methods: map[string]bool{"setÉtat": true}, invoked: map[string][]any{}}

		mustWrite(t, r.NewCallSite(testPos), NewForeign(h), NewString("état"), IntegerValue(4))
		args, called := h.invoked["setÉtat"]
		if called != compat {
			t.Errorf("compat=%v: setter invoked = %v", compat, called)
		}
		if called && (len(args) != 1 || args[0] != int32(4)) {
			t.Errorf("setter args = %v", args)
		}
	}
}

func TestForeignWrite_GuardedOnGoType(t *testing.T) {
	r := newTestRealm()
	s := r.NewCallSite(testPos)

	mustWrite(t, s, NewForeign(newFakeForeign()), IntegerValue(0), IntegerValue(1))
	mustWrite(t, s, NewForeign(newFakeForeign()), IntegerValue(0), IntegerValue(1))
	host := &fakeHost{fakeForeign: newFakeForeign(), methods: map[string]bool{}, invoked: map[string][]any{}}
	mustWrite(t, s, NewForeign(host), IntegerValue(0), IntegerValue(1))

	want := []string{"Foreign(*vm.fakeForeign)", "Foreign(*vm.fakeHost)"}
	got := s.ReceiverHandlers()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("receiver handlers = %v, want %v", got, want)
	}
}

func TestSetterName(t *testing.T) {
	tests := map[string]string{
		"":     "set",
		"name": "setName",
		"état": "setÉtat",
		"x":    "setX",
		"URL":  "setURL",
	}
	for in, want := range tests {
		if got := setterName(in); got != want {
			t.Errorf("setterName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportValue(t *testing.T) {
	r := newTestRealm()
	obj := r.NewObject()
	tests := []struct {
		in   Value
		want any
	}{
		{Undefined, nil},
		{Null, nil},
		{True, true},
		{IntegerValue(3), int32(3)},
		{NumberValue(1.5), 1.5},
		{NewString("s"), "s"},
	}
	for _, tt := range tests {
		if got := ExportValue(tt.in); got != tt.want {
			t.Errorf("ExportValue(%s) = %#v, want %#v", Inspect(tt.in), got, tt.want)
		}
	}
	if got, ok := ExportValue(obj).(Value); !ok || !sameObject(got, obj) {
		t.Errorf("ExportValue(object) = %#v", ExportValue(obj))
	}
}
