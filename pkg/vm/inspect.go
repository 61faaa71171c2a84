package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// inspectLimit caps how many elements of an array are rendered.
const inspectLimit = 100

// Inspect renders v for printing and diagnostics. It never runs script
// code: accessors are shown, not called.
func Inspect(v Value) string {
	return inspectWithDepth(v, false, 0, 8)
}

func inspectWithDepth(v Value, nested bool, depth, maxDepth int) string {
	if depth >= maxDepth {
		return "<...>"
	}
	switch v.typ {
	case TypeString:
		if nested {
			return strconv.Quote(v.AsString())
		}
		return v.AsString()
	case TypeSymbol:
		return fmt.Sprintf("Symbol(%s)", v.AsSymbol().Description)
	case TypeFloatNumber:
		return numberToString(v.AsFloat())
	case TypeIntegerNumber:
		return strconv.FormatInt(int64(v.AsInteger()), 10)
	case TypeBigInt:
		return v.AsBigInt().String() + "n"
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeHole:
		return "<hole>"
	case TypeNativeFunction:
		if name := v.AsNativeFunction().Name(); name != "" {
			return fmt.Sprintf("[Function: %s]", name)
		}
		return "[Function (anonymous)]"
	case TypeArray:
		return inspectArray(v.AsArray(), depth, maxDepth)
	case TypeTypedArray:
		return inspectTypedArray(v.AsTypedArray())
	case TypeArrayBuffer:
		return fmt.Sprintf("ArrayBuffer { byteLength: %d }", v.AsArrayBuffer().ByteLength())
	case TypeSharedArrayBuffer:
		return fmt.Sprintf("SharedArrayBuffer { byteLength: %d }", v.AsSharedArrayBuffer().ByteLength())
	case TypeForeign:
		return fmt.Sprintf("[foreign %T]", v.AsForeign())
	case TypeHost:
		return fmt.Sprintf("[host %T]", v.AsHost())
	case TypeObject:
		return inspectObject(v.AsPlainObject(), depth, maxDepth)
	}
	return "<" + v.typ.String() + ">"
}

func inspectArray(a *ArrayObject, depth, maxDepth int) string {
	length := a.Length()
	elems := a.Elements()
	var b strings.Builder
	b.WriteByte('[')
	n := min(length, inspectLimit)
	for i := int64(0); i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if e, ok := elems[i]; ok {
			b.WriteString(inspectWithDepth(e, true, depth+1, maxDepth))
		} else {
			b.WriteString("<hole>")
		}
	}
	if length > n {
		fmt.Fprintf(&b, ", ... %d more", length-n)
	}
	b.WriteByte(']')
	return b.String()
}

func inspectTypedArray(ta *TypedArrayObject) string {
	if ta.IsDetached() {
		return fmt.Sprintf("%s(detached)", ta.kind.Name())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%d) [", ta.kind.Name(), ta.length)
	n := min(ta.length, inspectLimit)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Inspect(ta.GetElement(i)))
	}
	if ta.length > n {
		fmt.Fprintf(&b, ", ... %d more", ta.length-n)
	}
	b.WriteByte(']')
	return b.String()
}

func inspectObject(o *PlainObject, depth, maxDepth int) string {
	switch o.class {
	case ClassBoolean, ClassNumber, ClassString, ClassSymbol, ClassBigInt:
		return fmt.Sprintf("[%s: %s]", o.class, inspectWithDepth(o.primitive, true, depth+1, maxDepth))
	case ClassError:
		if msg, ok := o.GetOwn("message"); ok {
			return "Error: " + inspectWithDepth(msg, false, depth+1, maxDepth)
		}
		return "Error"
	}
	keys := o.OwnKeys()
	if len(keys) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(" ")
		b.WriteString(k.String())
		b.WriteString(": ")
		d, ok := o.GetOwnProperty(k)
		switch {
		case !ok:
			b.WriteString("<deleted>")
		case d.Accessor:
			b.WriteString("[Getter/Setter]")
		default:
			b.WriteString(inspectWithDepth(d.Value, true, depth+1, maxDepth))
		}
	}
	b.WriteString(" }")
	return b.String()
}
