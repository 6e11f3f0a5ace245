package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Operand: an instruction's immediate argument
// ---------------------------------------------------------------------------

// OperandKind discriminates the variants of an Operand. The numeric values
// double as the operand tag byte in the binary record format, so they are
// fixed.
type OperandKind byte

const (
	OperandBoxed  OperandKind = 0 // a pre-encoded Value
	OperandNone   OperandKind = 1
	OperandInt64  OperandKind = 2
	OperandUint64 OperandKind = 3
	OperandFloat  OperandKind = 4
	OperandStr    OperandKind = 5
)

// String returns the kind name used in diagnostics.
func (k OperandKind) String() string {
	switch k {
	case OperandBoxed:
		return "boxed"
	case OperandNone:
		return "none"
	case OperandInt64:
		return "int64"
	case OperandUint64:
		return "uint64"
	case OperandFloat:
		return "float"
	case OperandStr:
		return "str"
	default:
		return fmt.Sprintf("operand(%d)", byte(k))
	}
}

// Operand is the discriminated immediate argument of an instruction. It is
// built by the assembler (or a host), consumed by the codec and the engine,
// and never coerces between variants. Numeric payloads share the bits field;
// string content lives in str.
type Operand struct {
	kind OperandKind
	bits uint64
	str  string
}

// NoOperand returns the empty operand.
func NoOperand() Operand {
	return Operand{kind: OperandNone}
}

// IntOperand returns a signed integer operand.
func IntOperand(n int64) Operand {
	return Operand{kind: OperandInt64, bits: uint64(n)}
}

// UintOperand returns an unsigned integer operand.
func UintOperand(n uint64) Operand {
	return Operand{kind: OperandUint64, bits: n}
}

// FloatOperand returns a float operand.
func FloatOperand(f float64) Operand {
	return Operand{kind: OperandFloat, bits: math.Float64bits(f)}
}

// StrOperand returns a string operand. Used for labels, native names, and
// string literals.
func StrOperand(s string) Operand {
	return Operand{kind: OperandStr, str: s}
}

// BoxedOperand returns an operand carrying an already-encoded Value.
func BoxedOperand(v Value) Operand {
	return Operand{kind: OperandBoxed, bits: uint64(v)}
}

// Kind returns the operand's variant.
func (o Operand) Kind() OperandKind {
	return o.kind
}

// IsNone reports whether the operand is empty.
func (o Operand) IsNone() bool {
	return o.kind == OperandNone
}

// Int64 returns the signed integer payload.
// Panics if the operand is not an Int64.
func (o Operand) Int64() int64 {
	if o.kind != OperandInt64 {
		panic("Operand.Int64: not an int64 operand")
	}
	return int64(o.bits)
}

// Uint64 returns the unsigned integer payload.
// Panics if the operand is not a Uint64.
func (o Operand) Uint64() uint64 {
	if o.kind != OperandUint64 {
		panic("Operand.Uint64: not a uint64 operand")
	}
	return o.bits
}

// Float64 returns the float payload.
// Panics if the operand is not a Float.
func (o Operand) Float64() float64 {
	if o.kind != OperandFloat {
		panic("Operand.Float64: not a float operand")
	}
	return math.Float64frombits(o.bits)
}

// Str returns the string payload.
// Panics if the operand is not a Str.
func (o Operand) Str() string {
	if o.kind != OperandStr {
		panic("Operand.Str: not a string operand")
	}
	return o.str
}

// Boxed returns the pre-encoded Value payload.
// Panics if the operand is not Boxed.
func (o Operand) Boxed() Value {
	if o.kind != OperandBoxed {
		panic("Operand.Boxed: not a boxed operand")
	}
	return Value(o.bits)
}

// Equal reports whether two operands have the same kind and payload.
func (o Operand) Equal(other Operand) bool {
	return o.kind == other.kind && o.bits == other.bits && o.str == other.str
}

// String renders the operand for disassembly and diagnostics.
func (o Operand) String() string {
	switch o.kind {
	case OperandNone:
		return ""
	case OperandInt64:
		return strconv.FormatInt(int64(o.bits), 10)
	case OperandUint64:
		return strconv.FormatUint(o.bits, 10) + "u"
	case OperandFloat:
		return strconv.FormatFloat(math.Float64frombits(o.bits), 'g', -1, 64)
	case OperandStr:
		return strconv.Quote(o.str)
	case OperandBoxed:
		return Value(o.bits).String()
	default:
		return fmt.Sprintf("operand(%d)", byte(o.kind))
	}
}
