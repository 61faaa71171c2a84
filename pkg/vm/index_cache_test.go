package vm

import (
	"math"
	"testing"
)

func TestToArrayIndex(t *testing.T) {
	r := newTestRealm()
	keyObj := r.NewObject()
	keyObj.AsPlainObject().SetOwn("toString", r.NewNativeFunction("toString", func(Value, []Value) (Value, error) {
		return NewString("3"), nil
	}))

	tests := []struct {
		name    string
		in      Value
		isIndex bool
		index   int64
		key     string
	}{
		{"int", IntegerValue(5), true, 5, ""},
		{"negative int", IntegerValue(-1), false, 0, "-1"},
		{"integral float", NumberValue(2), true, 2, ""},
		{"negative zero", NumberValue(math.Copysign(0, -1)), true, 0, ""},
		{"fraction", NumberValue(1.5), false, 0, "1.5"},
		{"max index", NumberValue(4294967294), true, 4294967294, ""},
		{"past max index", NumberValue(4294967295), false, 0, "4294967295"},
		{"NaN", NaN, false, 0, "NaN"},
		{"index string", NewString("7"), true, 7, ""},
		{"leading zero", NewString("07"), false, 0, "07"},
		{"name", NewString("length"), false, 0, "length"},
		{"object", keyObj, true, 3, ""},
		{"boolean", True, false, 0, "true"},
		{"null", Null, false, 0, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := ToArrayIndex(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			i, ok := idx.ArrayIndex()
			if ok != tt.isIndex {
				t.Fatalf("ToArrayIndex(%s) isIndex = %v", Inspect(tt.in), ok)
			}
			if ok && i != tt.index {
				t.Errorf("index = %d, want %d", i, tt.index)
			}
			if !ok && idx.PropertyKey().Name() != tt.key {
				t.Errorf("key = %q, want %q", idx.PropertyKey().Name(), tt.key)
			}
		})
	}

	sym := NewSymbol("s")
	idx, err := ToArrayIndex(sym)
	if err != nil || !idx.PropertyKey().IsSymbol() {
		t.Errorf("symbol index = %v, %v", idx, err)
	}
	if _, err := ToArrayIndex(r.NewObjectWithProto(Null)); err == nil {
		t.Error("object without toString/valueOf should fail conversion")
	}
}

func TestIndexShape_Transitions(t *testing.T) {
	r := newTestRealm()
	arr := r.NewArray()

	s := r.NewCallSite(testPos)
	if s.IndexShape() != "uninitialized" {
		t.Fatalf("new site shape = %s", s.IndexShape())
	}
	mustWrite(t, s, arr, IntegerValue(0), IntegerValue(1))
	mustWrite(t, s, arr, IntegerValue(1), IntegerValue(1))
	if s.IndexShape() != "int" {
		t.Fatalf("shape after int writes = %s", s.IndexShape())
	}
	mustWrite(t, s, arr, NumberValue(2), IntegerValue(1))
	if s.IndexShape() != "object" {
		t.Fatalf("shape after float write = %s", s.IndexShape())
	}
	mustWrite(t, s, arr, IntegerValue(3), IntegerValue(1))
	if s.IndexShape() != "object" {
		t.Errorf("shape went back to %s", s.IndexShape())
	}
	if arr.AsArray().Length() != 4 {
		t.Errorf("length = %d, want 4", arr.AsArray().Length())
	}

	named := r.NewCallSite(testPos)
	mustWrite(t, named, r.NewObject(), NewString("k"), IntegerValue(1))
	if named.IndexShape() != "object" {
		t.Errorf("shape after string write = %s", named.IndexShape())
	}
}

func TestPropertyKeys(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want int64
		ok   bool
	}{
		{"0", 0, true},
		{"42", 42, true},
		{"4294967294", 4294967294, true},
		{"4294967295", 0, false},
		{"", 0, false},
		{"01", 0, false},
		{"-1", 0, false},
		{"1e3", 0, false},
	} {
		got, ok := tryParseArrayIndex(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("tryParseArrayIndex(%q) = %d, %v", tt.in, got, ok)
		}
	}

	for _, tt := range []struct {
		in string
		ok bool
	}{
		{"1.5", true},
		{"-0", true},
		{"Infinity", true},
		{"-Infinity", true},
		{"NaN", true},
		{"1e+21", true},
		{"1.50", false},
		{"+1", false},
		{"01", false},
		{"abc", false},
		{"1e21", false},
	} {
		if _, ok := canonicalNumericIndex(tt.in); ok != tt.ok {
			t.Errorf("canonicalNumericIndex(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}

	if k := IndexKey(12); k.Name() != "12" || !k.IsString() {
		t.Errorf("IndexKey(12) = %v", k)
	}
	if i, ok := NewStringKey("12").ArrayIndex(); !ok || i != 12 {
		t.Errorf("ArrayIndex = %d, %v", i, ok)
	}
}
