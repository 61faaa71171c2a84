package vm

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"elemwrite/pkg/config"
)

func recordingSetter(r *Realm, this *Value, got *[]Value) Value {
	return r.NewNativeFunction("set", func(th Value, args []Value) (Value, error) {
		*this = th
		*got = append(*got, arg(args, 0))
		return Undefined, nil
	})
}

func TestAssumption_OneWay(t *testing.T) {
	a := NewAssumption("test")
	if !a.Valid() {
		t.Fatal("new assumption should be valid")
	}
	if !a.Invalidate() {
		t.Error("first Invalidate should report the flip")
	}
	if a.Invalidate() {
		t.Error("second Invalidate should report nothing")
	}
	if a.Valid() {
		t.Error("assumption valid again after invalidation")
	}
}

func TestPrototypeSetterWinsOverFastStorage(t *testing.T) {
	r := newTestRealm()
	arr := r.NewArray()
	if !r.Assumptions().NoPrototypeElements.Valid() {
		t.Fatal("fresh realm should have no prototype elements")
	}

	var this Value
	var got []Value
	r.ArrayPrototype.AsPlainObject().DefineAccessor(IndexKey(3), Undefined, recordingSetter(r, &this, &got))
	if r.Assumptions().NoPrototypeElements.Valid() {
		t.Fatal("indexed accessor on Array.prototype should invalidate NoPrototypeElements")
	}

	s := r.NewCallSite(testPos)
	mustWrite(t, s, arr, IntegerValue(3), IntegerValue(42))
	if len(got) != 1 || got[0].AsInteger() != 42 {
		t.Fatalf("setter calls = %v", got)
	}
	if !sameObject(this, arr) {
		t.Errorf("setter this = %s, want the array", Inspect(this))
	}
	if _, ok := arr.AsArray().GetElement(3); ok {
		t.Error("element stored despite inherited setter")
	}

	mustWrite(t, s, arr, IntegerValue(2), IntegerValue(1))
	if v := elementAt(t, arr, 2); v.AsInteger() != 1 {
		t.Errorf("arr[2] = %s", Inspect(v))
	}
}

func TestWriteOwnSiteSkipsInheritedElements(t *testing.T) {
	r := newTestRealm()
	var this Value
	var got []Value
	r.ArrayPrototype.AsPlainObject().DefineAccessor(IndexKey(0), Undefined, recordingSetter(r, &this, &got))

	arr := r.NewArray()
	s := r.NewCallSite(testPos, WithWriteOwn())
	mustWrite(t, s, arr, IntegerValue(0), IntegerValue(1))
	if len(got) != 0 {
		t.Errorf("initialising write called the inherited setter")
	}
	if v := elementAt(t, arr, 0); v.AsInteger() != 1 {
		t.Errorf("arr[0] = %s", Inspect(v))
	}
}

func TestHolesArrayWithForeignPrototype(t *testing.T) {
	r := newTestRealm()
	var this Value
	var got []Value
	proto := r.NewObjectWithProto(r.ArrayPrototype)
	proto.AsPlainObject().DefineAccessor(IndexKey(1), Undefined, recordingSetter(r, &this, &got))
	proto.AsPlainObject().DefineAccessor(IndexKey(3), Undefined, recordingSetter(r, &this, &got))

	arr := r.NewArrayFromValues(IntegerValue(1), IntegerValue(2), IntegerValue(3))
	a := arr.AsArray()
	a.DeleteElement(1)
	if !a.SetPrototype(proto) {
		t.Fatal("SetPrototype failed")
	}
	if r.Assumptions().FastArray.Valid() {
		t.Fatal("custom array prototype should invalidate FastArray")
	}

	// Even an initialising site checks the prototype when filling a hole
	// of an array with a non-standard prototype.
	s := r.NewCallSite(testPos, WithWriteOwn())
	mustWrite(t, s, arr, IntegerValue(1), IntegerValue(9))
	if len(got) != 1 {
		t.Fatalf("hole fill: setter calls = %d, want 1", len(got))
	}
	if _, ok := a.GetElement(1); ok {
		t.Error("hole filled despite inherited setter")
	}

	// Dense storage trusts the initialising site.
	dense := r.NewArrayFromValues(IntegerValue(1), IntegerValue(2), IntegerValue(3))
	dense.AsArray().SetPrototype(proto)
	mustWrite(t, s, dense, IntegerValue(3), IntegerValue(4))
	if len(got) != 1 {
		t.Errorf("dense append: setter calls = %d, want 1", len(got))
	}
	if v := elementAt(t, dense, 3); v.AsInteger() != 4 {
		t.Errorf("dense[3] = %s", Inspect(v))
	}
}

func TestArrayUsedAsPrototype(t *testing.T) {
	r := newTestRealm()
	protoArr := r.NewArray()
	child := r.NewObjectWithProto(protoArr)
	if !r.Assumptions().NoPrototypeElements.Valid() {
		t.Fatal("empty array prototype should not invalidate NoPrototypeElements")
	}

	s := r.NewCallSite(testPos)
	mustWrite(t, s, protoArr, IntegerValue(0), IntegerValue(1))
	if r.Assumptions().NoPrototypeElements.Valid() {
		t.Fatal("element stored on a prototype array should invalidate NoPrototypeElements")
	}

	mustWrite(t, s, child, IntegerValue(0), IntegerValue(5))
	own, ok := child.AsPlainObject().GetOwnProperty(IndexKey(0))
	if !ok || own.Value.AsInteger() != 5 {
		t.Errorf("child own [0] = %+v, %v", own, ok)
	}
	if v := elementAt(t, protoArr, 0); v.AsInteger() != 1 {
		t.Errorf("prototype element changed to %s", Inspect(v))
	}
}

func TestMarkAsPrototype_ArrayWithElements(t *testing.T) {
	r := newTestRealm()
	arr := r.NewArrayFromValues(IntegerValue(1))
	if !r.Assumptions().NoPrototypeElements.Valid() {
		t.Fatal("NoPrototypeElements invalid too early")
	}
	r.NewObjectWithProto(arr)
	if r.Assumptions().NoPrototypeElements.Valid() {
		t.Error("using an array with elements as a prototype should invalidate NoPrototypeElements")
	}
}

func TestFastArray_NeverRevalidates(t *testing.T) {
	var buf bytes.Buffer
	r := NewRealm(config.Default(), slog.New(slog.NewTextHandler(&buf, nil)))
	arr := r.NewArray()
	a := arr.AsArray()

	a.SetPrototype(r.NewObject())
	a.SetPrototype(r.ArrayPrototype)
	if r.Assumptions().FastArray.Valid() {
		t.Error("FastArray revalidated")
	}
	if !strings.Contains(buf.String(), "assumption=FastArray") {
		t.Errorf("invalidation not logged: %q", buf.String())
	}
}
