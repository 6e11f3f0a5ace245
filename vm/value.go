package vm

import (
	"fmt"
	"math"
)

// Value represents a Heron value using NaN-boxing.
//
// All values are 64-bit words. A word whose bit pattern is a well-formed
// IEEE 754 double denotes that float directly. Non-float values are encoded
// in the NaN space: exponent all ones plus a non-zero tag, which no real
// float computation produces.
//
// Encoding scheme:
//   - Float: native IEEE 754 double (anything that is not a tagged NaN)
//   - Int64: exponent all ones + tagInt64 + 48-bit magnitude, sign in bit 63
//   - Uint64: exponent all ones + tagUint64 + 48-bit magnitude
//   - Str: exponent all ones + tagStr + string pool handle
//   - Byte: exponent all ones + tagByte + 8-bit payload
type Value uint64

// NaN-boxing constants
const (
	// Exponent mask: bits 52-62 all ones marks the NaN/Inf space.
	// 0x7FF0_0000_0000_0000
	expMask uint64 = 0x7FF0000000000000

	// Mantissa mask: everything below the exponent, sign excluded.
	mantissaMask uint64 = 0x000FFFFFFFFFFFFF

	// Tag mask: 4 bits within the mantissa space.
	// 0x000F_0000_0000_0000
	tagMask uint64 = 0x000F000000000000

	// Payload mask: 48 bits of magnitude or handle.
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Sign bit: negative magnitude marker for boxed integers.
	signBit uint64 = 0x8000000000000000

	// Tag values (shifted into position). Tag 0 is reserved so that real
	// NaNs, whose mantissa carries no tag we recognize, stay floats. The
	// quiet-NaN bit is 0x0008...; runtime NaNs therefore land on tag 0x8
	// and above, which we also leave to the floats.
	tagInt64  uint64 = 0x0001000000000000
	tagUint64 uint64 = 0x0002000000000000
	tagStr    uint64 = 0x0003000000000000
	tagByte   uint64 = 0x0004000000000000
)

// Magnitude range for boxed integers (48-bit unsigned payload).
const (
	MaxMagnitude uint64 = payloadMask         // 281,474,976,710,655
	MaxInt64     int64  = int64(payloadMask)  // largest boxable int64
	MinInt64     int64  = -int64(payloadMask) // smallest boxable int64
)

// ValueKind identifies the runtime type of a Value.
type ValueKind byte

const (
	KindFloat ValueKind = iota
	KindInt64
	KindUint64
	KindStr
	KindByte
)

// String returns the kind name used in diagnostics.
func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindStr:
		return "str"
	case KindByte:
		return "byte"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// boxedTag returns the tag bits if v is one of our boxed values, or 0 and
// false if v is a float (including Inf and real NaNs).
func (v Value) boxedTag() (uint64, bool) {
	bits := uint64(v)
	if (bits & expMask) != expMask {
		// Exponent is not all ones, so it's a regular float.
		return 0, false
	}
	if (bits & mantissaMask) == 0 {
		// +Inf or -Inf, which are valid floats.
		return 0, false
	}
	tag := bits & tagMask
	if tag == 0 || tag > tagByte {
		// A real NaN (quiet NaNs land on tag 0x8 and above), not ours.
		return 0, false
	}
	return tag, true
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsFloat returns true if v represents a float64 value.
// This includes regular numbers, infinities, and real NaNs.
func (v Value) IsFloat() bool {
	_, boxed := v.boxedTag()
	return !boxed
}

// IsInt64 returns true if v is a boxed signed integer.
func (v Value) IsInt64() bool {
	tag, boxed := v.boxedTag()
	return boxed && tag == tagInt64
}

// IsUint64 returns true if v is a boxed unsigned integer.
func (v Value) IsUint64() bool {
	tag, boxed := v.boxedTag()
	return boxed && tag == tagUint64
}

// IsStr returns true if v is a string pool handle.
func (v Value) IsStr() bool {
	tag, boxed := v.boxedTag()
	return boxed && tag == tagStr
}

// IsByte returns true if v is a boxed byte.
func (v Value) IsByte() bool {
	tag, boxed := v.boxedTag()
	return boxed && tag == tagByte
}

// Kind returns the runtime type of v.
func (v Value) Kind() ValueKind {
	tag, boxed := v.boxedTag()
	if !boxed {
		return KindFloat
	}
	switch tag {
	case tagInt64:
		return KindInt64
	case tagUint64:
		return KindUint64
	case tagStr:
		return KindStr
	default:
		return KindByte
	}
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// FromFloat64 creates a Value from a float64.
func FromFloat64(f float64) Value {
	return Value(math.Float64bits(f))
}

// Float64 returns v as a float64.
// Panics if v is not a float.
func (v Value) Float64() float64 {
	if !v.IsFloat() {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(uint64(v))
}

// ---------------------------------------------------------------------------
// Integer operations
// ---------------------------------------------------------------------------

// box assembles a tagged value. Zero magnitude forces the sign bit, giving
// zero a single dedicated encoding with no positive/negative split.
func box(tag uint64, magnitude uint64, negative bool) Value {
	bits := expMask | tag | (magnitude & payloadMask)
	if negative || magnitude == 0 {
		bits |= signBit
	}
	return Value(bits)
}

// FromInt64 creates a Value from an int64.
// Panics if |n| exceeds the 48-bit magnitude range; use TryFromInt64 for a
// checked conversion. Out-of-range values are rejected, never truncated.
func FromInt64(n int64) Value {
	v, ok := TryFromInt64(n)
	if !ok {
		panic("FromInt64: magnitude out of range")
	}
	return v
}

// TryFromInt64 creates a Value from an int64, returning false if the
// magnitude does not fit in 48 bits.
func TryFromInt64(n int64) (Value, bool) {
	if n > MaxInt64 || n < MinInt64 {
		return Value(0), false
	}
	mag := uint64(n)
	if n < 0 {
		mag = uint64(-n)
	}
	return box(tagInt64, mag, n < 0), true
}

// Int64 returns v as an int64.
// Panics if v is not a boxed signed integer.
func (v Value) Int64() int64 {
	if !v.IsInt64() {
		panic("Value.Int64: not an int64")
	}
	return v.signedPayload()
}

// signedPayload decodes the magnitude/sign split shared by all boxed kinds.
func (v Value) signedPayload() int64 {
	mag := int64(uint64(v) & payloadMask)
	if uint64(v)&signBit != 0 {
		return -mag
	}
	return mag
}

// FromUint64 creates a Value from a uint64.
// Panics if n exceeds the 48-bit payload; use TryFromUint64 for a checked
// conversion.
func FromUint64(n uint64) Value {
	v, ok := TryFromUint64(n)
	if !ok {
		panic("FromUint64: magnitude out of range")
	}
	return v
}

// TryFromUint64 creates a Value from a uint64, returning false if it does
// not fit in 48 bits.
func TryFromUint64(n uint64) (Value, bool) {
	if n > MaxMagnitude {
		return Value(0), false
	}
	return box(tagUint64, n, false), true
}

// Uint64 returns v as a uint64.
// Panics if v is not a boxed unsigned integer.
func (v Value) Uint64() uint64 {
	if !v.IsUint64() {
		panic("Value.Uint64: not a uint64")
	}
	return uint64(v) & payloadMask
}

// ---------------------------------------------------------------------------
// Byte operations
// ---------------------------------------------------------------------------

// FromByte creates a Value from a single byte.
func FromByte(b byte) Value {
	return box(tagByte, uint64(b), false)
}

// Byte returns v as a byte.
// Panics if v is not a boxed byte.
func (v Value) Byte() byte {
	if !v.IsByte() {
		panic("Value.Byte: not a byte")
	}
	return byte(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// String handles
// ---------------------------------------------------------------------------

// FromStringID creates a Value from a string pool handle.
func FromStringID(id uint32) Value {
	return box(tagStr, uint64(id), false)
}

// StringID returns the string pool handle encoded in v.
// Panics if v is not a string value.
func (v Value) StringID() uint32 {
	if !v.IsStr() {
		panic("Value.StringID: not a string")
	}
	return uint32(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// Generic access
// ---------------------------------------------------------------------------

// Index returns the payload of any boxed value as an int, for use as a
// table or address index. Panics if v is a float.
func (v Value) Index() int {
	if _, boxed := v.boxedTag(); !boxed {
		panic("Value.Index: not a boxed value")
	}
	return int(uint64(v) & payloadMask)
}

// String renders v for diagnostics. Str values show the raw handle; the
// engine resolves handles through its string table when printing.
func (v Value) String() string {
	switch v.Kind() {
	case KindFloat:
		return fmt.Sprintf("float(%g)", v.Float64())
	case KindInt64:
		return fmt.Sprintf("int64(%d)", v.Int64())
	case KindUint64:
		return fmt.Sprintf("uint64(%d)", v.Uint64())
	case KindStr:
		return fmt.Sprintf("str(#%d)", v.StringID())
	default:
		return fmt.Sprintf("byte(%d)", v.Byte())
	}
}
