package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction and Program
// ---------------------------------------------------------------------------

// Instruction pairs an opcode with its immediate operand. Instructions are
// immutable once placed into a Program.
type Instruction struct {
	Op  Opcode
	Arg Operand
}

// NewInstruction creates an instruction.
func NewInstruction(op Opcode, arg Operand) Instruction {
	return Instruction{Op: op, Arg: arg}
}

// Inst creates an instruction with no operand.
func Inst(op Opcode) Instruction {
	return Instruction{Op: op, Arg: NoOperand()}
}

// String renders the instruction in assembly form.
func (in Instruction) String() string {
	if in.Arg.IsNone() {
		return in.Op.Name()
	}
	arg := in.Arg.String()
	// Label and jump targets read better bare than quoted.
	if in.Arg.Kind() == OperandStr && in.Op.Info().Operand != ImmediateArg {
		arg = in.Arg.Str()
	}
	return in.Op.Name() + " " + arg
}

// Program is an ordered, index-addressable sequence of instructions. The
// instruction pointer is always an index into it, never a raw address.
type Program []Instruction

// Disassemble returns a listing of the program, one instruction per line,
// with zero-based addresses.
func Disassemble(p Program) string {
	var b strings.Builder
	for i, in := range p {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%04d  %s", i, in.String())
	}
	return b.String()
}
