package vm

import (
	"testing"

	"elemwrite/pkg/config"
	"elemwrite/pkg/errors"
)

func newTestRealm() *Realm {
	return NewRealm(config.Default(), nil)
}

func newTestRealmWith(tweak func(*config.Options)) *Realm {
	opts := config.Default()
	tweak(&opts)
	return NewRealm(opts, nil)
}

var testPos = errors.Position{Line: 3, Column: 5, File: "test.js"}

// mustWrite performs target[index] = value through s and fails the test on
// error.
func mustWrite(t *testing.T, s *CallSite, target, index, value Value) {
	t.Helper()
	if err := s.WriteElement(target, index, value); err != nil {
		t.Fatalf("write %s[%s] = %s: %v", Inspect(target), Inspect(index), Inspect(value), err)
	}
}

func mustTypedArray(t *testing.T, r *Realm, kind TypedArrayKind, length int) Value {
	t.Helper()
	v, err := r.NewTypedArray(kind, length)
	if err != nil {
		t.Fatalf("NewTypedArray(%s, %d): %v", kind.Name(), length, err)
	}
	return v
}

// countingValueOf returns an object whose valueOf returns result and
// counts its calls.
func countingValueOf(r *Realm, result Value, calls *int) Value {
	obj := r.NewObject()
	obj.AsPlainObject().SetOwn("valueOf", r.NewNativeFunction("valueOf", func(Value, []Value) (Value, error) {
		*calls++
		return result, nil
	}))
	return obj
}

func elementAt(t *testing.T, arr Value, index int64) Value {
	t.Helper()
	v, ok := arr.AsArray().GetElement(index)
	if !ok {
		t.Fatalf("element %d missing from %s", index, Inspect(arr))
	}
	return v
}
