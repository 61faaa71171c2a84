package vm

import (
	"math"
	"math/big"
	"testing"
)

func TestNumber_PrefersIntegers(t *testing.T) {
	if v := Number(3); !v.IsInteger() || v.AsInteger() != 3 {
		t.Errorf("Number(3) = %s (%s)", Inspect(v), v.Type())
	}
	if v := Number(math.Copysign(0, -1)); !v.IsFloat() {
		t.Errorf("Number(-0) should stay a float")
	}
	if v := Number(1 << 31); !v.IsFloat() {
		t.Errorf("Number(2^31) should be a float")
	}
}

func TestSameValue(t *testing.T) {
	tests := []struct {
		a, b Value
		want bool
	}{
		{IntegerValue(1), NumberValue(1), true},
		{NaN, NumberValue(math.NaN()), true},
		{NumberValue(0), NumberValue(math.Copysign(0, -1)), false},
		{NewString("a"), NewString("a"), true},
		{NewBigInt(big.NewInt(2)), NewBigInt(big.NewInt(2)), true},
		{NewSymbol("x"), NewSymbol("x"), false},
		{Undefined, Null, false},
	}
	for _, tt := range tests {
		if got := SameValue(tt.a, tt.b); got != tt.want {
			t.Errorf("SameValue(%s, %s) = %v", Inspect(tt.a), Inspect(tt.b), got)
		}
	}
}

func TestInspect(t *testing.T) {
	r := newTestRealm()
	arr := r.NewArrayFromValues(IntegerValue(1), NewString("a"), Null)
	arr.AsArray().DeleteElement(1)

	tests := []struct {
		in   Value
		want string
	}{
		{arr, `[1, <hole>, null]`},
		{r.NewArrayFromValues(NewString("a")), `["a"]`},
		{NumberValue(1e21), "1e+21"},
		{NumberValue(0.5), "0.5"},
		{NewBigInt(big.NewInt(10)), "10n"},
		{NewSymbol("d"), "Symbol(d)"},
		{r.NewObject(), "{}"},
		{r.NewNativeFunction("f", nil), "[Function: f]"},
		{r.NewArrayWithLength(2), "[<hole>, <hole>]"},
	}
	for _, tt := range tests {
		if got := Inspect(tt.in); got != tt.want {
			t.Errorf("Inspect = %q, want %q", got, tt.want)
		}
	}

	wrapper, err := r.ToObject(IntegerValue(4))
	if err != nil {
		t.Fatal(err)
	}
	if got := Inspect(ObjectValue(wrapper)); got != "[Number: 4]" {
		t.Errorf("Inspect(wrapper) = %q", got)
	}
}
