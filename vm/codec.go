package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Binary instruction records
// ---------------------------------------------------------------------------

// Record layout: [opcode:1][operandTag:1][payload]. The payload is 8 bytes
// (little-endian) for Boxed/Int64/Uint64/Float operands, empty for None,
// and [length:1][bytes:length] for Str. A record never exceeds
// MaxRecordSize bytes.

// MaxRecordSize is the fixed capacity of an encoded instruction record.
const MaxRecordSize = 14

// MaxStrPayload is the longest string that fits a record after the opcode,
// tag, and length bytes.
const MaxStrPayload = MaxRecordSize - 3

// Codec error values
var (
	ErrEncodingTooLarge = errors.New("value too large for instruction record")
	ErrTruncatedRecord  = errors.New("truncated instruction record")
	ErrInvalidEncoding  = errors.New("invalid instruction encoding")
)

// EncodeInstruction encodes a single instruction into a freshly allocated
// record. A failure produces no bytes. Each call owns its buffer, so
// concurrent encodes need no locking.
func EncodeInstruction(in Instruction) ([]byte, error) {
	if !in.Op.Valid() {
		return nil, fmt.Errorf("%w: unknown opcode 0x%02X", ErrInvalidEncoding, byte(in.Op))
	}

	buf := make([]byte, 0, MaxRecordSize)
	buf = append(buf, byte(in.Op), byte(in.Arg.Kind()))

	switch in.Arg.Kind() {
	case OperandNone:
		// No payload.
	case OperandBoxed:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(in.Arg.Boxed()))
	case OperandInt64:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(in.Arg.Int64()))
	case OperandUint64:
		buf = binary.LittleEndian.AppendUint64(buf, in.Arg.Uint64())
	case OperandFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(in.Arg.Float64()))
	case OperandStr:
		s := in.Arg.Str()
		if len(s) > MaxStrPayload {
			return nil, fmt.Errorf("%w: string payload is %d bytes, capacity %d",
				ErrEncodingTooLarge, len(s), MaxStrPayload)
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	default:
		return nil, fmt.Errorf("%w: unknown operand tag %d", ErrInvalidEncoding, byte(in.Arg.Kind()))
	}
	return buf, nil
}

// DecodeInstruction decodes one instruction record from the front of data.
// It returns the instruction and the number of bytes consumed, so callers
// can walk a buffer of concatenated records. Every read is bounds-checked:
// a buffer shorter than the record it implies is ErrTruncatedRecord, never
// a read past the end.
func DecodeInstruction(data []byte) (Instruction, int, error) {
	if len(data) < 2 {
		return Instruction{}, 0, fmt.Errorf("%w: need at least 2 bytes, have %d",
			ErrTruncatedRecord, len(data))
	}

	op := Opcode(data[0])
	if !op.Valid() {
		return Instruction{}, 0, fmt.Errorf("%w: unknown opcode 0x%02X", ErrInvalidEncoding, data[0])
	}
	tag := OperandKind(data[1])
	pos := 2

	switch tag {
	case OperandNone:
		return NewInstruction(op, NoOperand()), pos, nil

	case OperandBoxed, OperandInt64, OperandUint64, OperandFloat:
		if len(data) < pos+8 {
			return Instruction{}, 0, fmt.Errorf("%w: %s payload needs 8 bytes, have %d",
				ErrTruncatedRecord, tag, len(data)-pos)
		}
		bits := binary.LittleEndian.Uint64(data[pos:])
		pos += 8
		switch tag {
		case OperandBoxed:
			return NewInstruction(op, BoxedOperand(Value(bits))), pos, nil
		case OperandInt64:
			return NewInstruction(op, IntOperand(int64(bits))), pos, nil
		case OperandUint64:
			return NewInstruction(op, UintOperand(bits)), pos, nil
		default:
			return NewInstruction(op, FloatOperand(math.Float64frombits(bits))), pos, nil
		}

	case OperandStr:
		if len(data) < pos+1 {
			return Instruction{}, 0, fmt.Errorf("%w: missing string length byte", ErrTruncatedRecord)
		}
		n := int(data[pos])
		pos++
		if n > MaxStrPayload {
			return Instruction{}, 0, fmt.Errorf("%w: string length %d exceeds capacity %d",
				ErrInvalidEncoding, n, MaxStrPayload)
		}
		if len(data) < pos+n {
			return Instruction{}, 0, fmt.Errorf("%w: string payload needs %d bytes, have %d",
				ErrTruncatedRecord, n, len(data)-pos)
		}
		s := string(data[pos : pos+n])
		pos += n
		return NewInstruction(op, StrOperand(s)), pos, nil

	default:
		return Instruction{}, 0, fmt.Errorf("%w: unknown operand tag %d", ErrInvalidEncoding, data[1])
	}
}
