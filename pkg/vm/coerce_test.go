package vm

import (
	"math"
	"math/big"
	"testing"
)

func TestToInt8_Wraparound(t *testing.T) {
	tests := []struct {
		in   float64
		want int8
	}{
		{300, 44},
		{127, 127},
		{128, -128},
		{-129, 127},
		{255.9, -1},
		{-1.5, -1},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tt := range tests {
		if got := ToInt8(tt.in); got != tt.want {
			t.Errorf("ToInt8(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToUint8Clamp_RoundsHalfToEven(t *testing.T) {
	tests := []struct {
		in   float64
		want uint8
	}{
		{-10, 0},
		{1000, 255},
		{0.5, 0},
		{1.5, 2},
		{2.5, 2},
		{254.5, 254},
		{math.NaN(), 0},
		{math.Inf(-1), 0},
		{math.Inf(1), 255},
	}
	for _, tt := range tests {
		if got := ToUint8Clamp(tt.in); got != tt.want {
			t.Errorf("ToUint8Clamp(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIntegerConversions(t *testing.T) {
	if got := ToInt16(40000); got != -25536 {
		t.Errorf("ToInt16(40000) = %d", got)
	}
	if got := ToUint16(-1); got != 65535 {
		t.Errorf("ToUint16(-1) = %d", got)
	}
	if got := ToInt32(4294967296 + 5); got != 5 {
		t.Errorf("ToInt32(2^32+5) = %d", got)
	}
	if got := ToInt32(2147483648); got != math.MinInt32 {
		t.Errorf("ToInt32(2^31) = %d", got)
	}
	if got := ToUint32(-1); got != math.MaxUint32 {
		t.Errorf("ToUint32(-1) = %d", got)
	}
}

func TestBigIntTruncation(t *testing.T) {
	big65 := new(big.Int).Lsh(big.NewInt(1), 65)
	if got := ToBigUint64(big65); got != 0 {
		t.Errorf("ToBigUint64(2^65) = %d", got)
	}
	if got := ToBigInt64(big.NewInt(-1)); got != -1 {
		t.Errorf("ToBigInt64(-1) = %d", got)
	}
	if got := ToBigUint64(big.NewInt(-1)); got != math.MaxUint64 {
		t.Errorf("ToBigUint64(-1) = %d", got)
	}
	maxPlusOne := new(big.Int).Add(big.NewInt(math.MaxInt64), big.NewInt(1))
	if got := ToBigInt64(maxPlusOne); got != math.MinInt64 {
		t.Errorf("ToBigInt64(2^63) = %d", got)
	}
}

func TestToBigInt_Errors(t *testing.T) {
	for _, v := range []Value{IntegerValue(1), NumberValue(1.5), Undefined, Null, NewString("abc"), NewSymbol("s")} {
		if _, err := ToBigInt(v); err == nil {
			t.Errorf("ToBigInt(%s) should fail", Inspect(v))
		}
	}
	b, err := ToBigInt(NewString(" 0x1f "))
	if err != nil || b.Int64() != 31 {
		t.Errorf("ToBigInt(\" 0x1f \") = %v, %v", b, err)
	}
	b, err = ToBigInt(True)
	if err != nil || b.Int64() != 1 {
		t.Errorf("ToBigInt(true) = %v, %v", b, err)
	}
}

func TestToNumber_Objects(t *testing.T) {
	r := newTestRealm()
	obj := r.NewObject()
	obj.AsPlainObject().SetOwn("valueOf", r.NewNativeFunction("valueOf", func(Value, []Value) (Value, error) {
		return IntegerValue(7), nil
	}))
	n, err := ToNumber(obj)
	if err != nil || n != 7 {
		t.Errorf("ToNumber(obj) = %v, %v", n, err)
	}
	if _, err := ToNumber(NewBigInt(big.NewInt(1))); err == nil {
		t.Error("ToNumber(bigint) should fail")
	}
	if n, _ := ToNumber(NewString("  12  ")); n != 12 {
		t.Errorf("ToNumber(\"  12  \") = %v", n)
	}
}
