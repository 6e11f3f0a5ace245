package vm

import (
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Instruction
		size int
	}{
		{"none", Inst(OpHalt), 2},
		{"int64", NewInstruction(OpPush, IntOperand(-12345)), 10},
		{"uint64", NewInstruction(OpPush, UintOperand(98765)), 10},
		{"float", NewInstruction(OpPush, FloatOperand(2.5)), 10},
		{"boxed", NewInstruction(OpPush, BoxedOperand(FromInt64(7))), 10},
		{"str", NewInstruction(OpNative, StrOperand("print")), 8},
		{"empty str", NewInstruction(OpLabel, StrOperand("")), 3},
		{"max str", NewInstruction(OpLabel, StrOperand(strings.Repeat("x", MaxStrPayload))), MaxRecordSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := EncodeInstruction(tt.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(rec) != tt.size {
				t.Errorf("record size = %d, want %d", len(rec), tt.size)
			}
			if len(rec) > MaxRecordSize {
				t.Errorf("record size %d exceeds capacity %d", len(rec), MaxRecordSize)
			}

			out, n, err := DecodeInstruction(rec)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if n != len(rec) {
				t.Errorf("consumed %d bytes, want %d", n, len(rec))
			}
			if out.Op != tt.in.Op || !out.Arg.Equal(tt.in.Arg) {
				t.Errorf("round trip: got %v, want %v", out, tt.in)
			}
		})
	}
}

func TestCodecConcatenatedRecords(t *testing.T) {
	prog := Program{
		NewInstruction(OpPush, IntOperand(5)),
		NewInstruction(OpPush, IntOperand(3)),
		Inst(OpIAdd),
		Inst(OpHalt),
	}
	var buf []byte
	for _, in := range prog {
		rec, err := EncodeInstruction(in)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		buf = append(buf, rec...)
	}

	var out Program
	for len(buf) > 0 {
		in, n, err := DecodeInstruction(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, in)
		buf = buf[n:]
	}
	if len(out) != len(prog) {
		t.Fatalf("decoded %d instructions, want %d", len(out), len(prog))
	}
	for i := range prog {
		if out[i].Op != prog[i].Op || !out[i].Arg.Equal(prog[i].Arg) {
			t.Errorf("instruction %d: got %v, want %v", i, out[i], prog[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Encode failures
// ---------------------------------------------------------------------------

func TestEncodeStringTooLarge(t *testing.T) {
	in := NewInstruction(OpLabel, StrOperand(strings.Repeat("y", MaxStrPayload+1)))
	rec, err := EncodeInstruction(in)
	if !errors.Is(err, ErrEncodingTooLarge) {
		t.Fatalf("err = %v, want ErrEncodingTooLarge", err)
	}
	if rec != nil {
		t.Errorf("failed encode produced %d bytes, want none", len(rec))
	}
}

func TestEncodeUnknownOpcode(t *testing.T) {
	if _, err := EncodeInstruction(Inst(Opcode(0xEE))); !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("err = %v, want ErrInvalidEncoding", err)
	}
}

// ---------------------------------------------------------------------------
// Decode failures
// ---------------------------------------------------------------------------

func TestDecodeTruncated(t *testing.T) {
	full, err := EncodeInstruction(NewInstruction(OpPush, IntOperand(99)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"opcode only", full[:1]},
		{"header only", full[:2]},
		{"partial payload", full[:6]},
		{"payload short one", full[:len(full)-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeInstruction(tt.data); !errors.Is(err, ErrTruncatedRecord) {
				t.Errorf("err = %v, want ErrTruncatedRecord", err)
			}
		})
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	rec, err := EncodeInstruction(NewInstruction(OpNative, StrOperand("clock")))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Drop the final content byte; the length byte now lies.
	if _, _, err := DecodeInstruction(rec[:len(rec)-1]); !errors.Is(err, ErrTruncatedRecord) {
		t.Errorf("err = %v, want ErrTruncatedRecord", err)
	}
	// Drop the length byte as well.
	if _, _, err := DecodeInstruction(rec[:2]); !errors.Is(err, ErrTruncatedRecord) {
		t.Errorf("err = %v, want ErrTruncatedRecord", err)
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"unknown opcode", []byte{0xEE, byte(OperandNone)}},
		{"unknown tag", []byte{byte(OpPush), 0x09}},
		{"oversized string length", []byte{byte(OpLabel), byte(OperandStr), 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeInstruction(tt.data); !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("err = %v, want ErrInvalidEncoding", err)
			}
		})
	}
}
