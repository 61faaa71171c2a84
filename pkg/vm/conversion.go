package vm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"elemwrite/pkg/errors"
)

// PrimitiveHint selects the method order of ToPrimitive.
type PrimitiveHint uint8

const (
	HintNumber PrimitiveHint = iota
	HintString
)

// ToPrimitive converts an object to a primitive by calling its valueOf and
// toString methods in hint order. Primitives are returned unchanged.
func ToPrimitive(v Value, hint PrimitiveHint) (Value, error) {
	obj := v.AsHeapObject()
	if obj == nil {
		return v, nil
	}
	order := [2]string{"valueOf", "toString"}
	if hint == HintString {
		order[0], order[1] = order[1], order[0]
	}
	for _, name := range order {
		m, err := obj.Get(NewStringKey(name), v)
		if err != nil {
			return Undefined, err
		}
		if !m.IsCallable() {
			continue
		}
		res, err := Call(m, v)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, errors.NewTypeError(errors.Position{}, "Cannot convert object to primitive value")
}

// ToNumber implements the ToNumber abstract operation. BigInts and symbols
// are TypeErrors; objects go through valueOf.
func ToNumber(v Value) (float64, error) {
	switch v.typ {
	case TypeUndefined, TypeHole:
		return math.NaN(), nil
	case TypeNull:
		return 0, nil
	case TypeBoolean:
		if v.AsBoolean() {
			return 1, nil
		}
		return 0, nil
	case TypeIntegerNumber, TypeFloatNumber:
		return v.AsFloat(), nil
	case TypeString:
		return parseStringToNumber(v.AsString()), nil
	case TypeBigInt:
		return 0, errors.NewTypeError(errors.Position{}, "Cannot convert a BigInt value to a number")
	case TypeSymbol:
		return 0, errors.NewTypeError(errors.Position{}, "Cannot convert a Symbol value to a number")
	case TypeForeign, TypeHost:
		return math.NaN(), nil
	}
	prim, err := ToPrimitive(v, HintNumber)
	if err != nil {
		return 0, err
	}
	return ToNumber(prim)
}

// ToString implements the ToString abstract operation.
func ToString(v Value) (string, error) {
	switch v.typ {
	case TypeUndefined, TypeHole:
		return "undefined", nil
	case TypeNull:
		return "null", nil
	case TypeBoolean:
		return strconv.FormatBool(v.AsBoolean()), nil
	case TypeIntegerNumber:
		return strconv.FormatInt(int64(v.AsInteger()), 10), nil
	case TypeFloatNumber:
		return numberToString(v.AsFloat()), nil
	case TypeBigInt:
		return v.AsBigInt().String(), nil
	case TypeString:
		return v.AsString(), nil
	case TypeSymbol:
		return "", errors.NewTypeError(errors.Position{}, "Cannot convert a Symbol value to a string")
	case TypeForeign:
		return "[foreign]", nil
	case TypeHost:
		return fmt.Sprint(v.AsHost()), nil
	}
	prim, err := ToPrimitive(v, HintString)
	if err != nil {
		return "", err
	}
	return ToString(prim)
}

// ToPropertyKey converts v to a string or symbol key.
func ToPropertyKey(v Value) (PropertyKey, error) {
	if v.IsObject() {
		prim, err := ToPrimitive(v, HintString)
		if err != nil {
			return PropertyKey{}, err
		}
		v = prim
	}
	if v.IsSymbol() {
		return NewSymbolKey(v), nil
	}
	s, err := ToString(v)
	if err != nil {
		return PropertyKey{}, err
	}
	return NewStringKey(s), nil
}

// ToBigInt implements the ToBigInt abstract operation. Every failure,
// including an unparsable string, is a TypeError.
func ToBigInt(v Value) (*big.Int, error) {
	switch v.typ {
	case TypeBigInt:
		return v.AsBigInt(), nil
	case TypeBoolean:
		if v.AsBoolean() {
			return big.NewInt(1), nil
		}
		return big.NewInt(0), nil
	case TypeString:
		if b, ok := StringToBigInt(v.AsString()); ok {
			return b, nil
		}
		return nil, errors.NewTypeError(errors.Position{}, "Cannot convert %s to a BigInt", v.AsString())
	case TypeUndefined, TypeNull, TypeHole, TypeIntegerNumber, TypeFloatNumber, TypeForeign, TypeHost:
		s, _ := ToString(v)
		return nil, errors.NewTypeError(errors.Position{}, "Cannot convert %s to a BigInt", s)
	case TypeSymbol:
		return nil, errors.NewTypeError(errors.Position{}, "Cannot convert a Symbol value to a BigInt")
	}
	prim, err := ToPrimitive(v, HintNumber)
	if err != nil {
		return nil, err
	}
	return ToBigInt(prim)
}

// StringToBigInt parses a StringIntegerLiteral: optional surrounding
// whitespace, then a signed decimal or an unsigned 0x/0o/0b literal.
func StringToBigInt(s string) (*big.Int, bool) {
	str := strings.TrimSpace(s)
	if str == "" {
		return new(big.Int), true
	}
	base := 10
	if len(str) > 2 && str[0] == '0' {
		switch str[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			str = str[2:]
		}
	}
	if base == 10 && (str[0] == '+' || str[0] == '-') && len(str) == 1 {
		return nil, false
	}
	if base != 10 && (str[0] == '+' || str[0] == '-') {
		return nil, false
	}
	if strings.Contains(str, "_") {
		return nil, false
	}
	b, ok := new(big.Int).SetString(str, base)
	return b, ok
}

// RequireObjectCoercible fails when a property write targets null or
// undefined.
func RequireObjectCoercible(target, index Value) error {
	if !target.IsNullish() {
		return nil
	}
	return errors.NewTypeError(errors.Position{}, "Cannot set property '%s' of %s", safeKeyString(index), target.typ)
}

// safeKeyString renders a key for messages without running script code.
func safeKeyString(v Value) string {
	switch {
	case v.IsSymbol():
		return "Symbol(" + v.AsSymbol().Description + ")"
	case v.IsObject():
		return "[object]"
	}
	s, _ := ToString(v)
	return s
}
