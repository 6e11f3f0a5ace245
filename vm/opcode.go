package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single instruction's operation code.
type Opcode byte

// Stack operations
const (
	OpNop  Opcode = 0x00 // no operation
	OpPush Opcode = 0x01 // push the instruction operand
	OpPop  Opcode = 0x02 // discard top of stack
	OpSwap Opcode = 0x03 // exchange the two top slots
	OpDup  Opcode = 0x04 // duplicate top of stack
)

// Float arithmetic
const (
	OpFAdd Opcode = 0x10
	OpFSub Opcode = 0x11
	OpFMul Opcode = 0x12
	OpFDiv Opcode = 0x13
)

// Integer arithmetic
const (
	OpIAdd Opcode = 0x20
	OpISub Opcode = 0x21
	OpIMul Opcode = 0x22
	OpIDiv Opcode = 0x23
	OpInc  Opcode = 0x24 // increment top of stack in place
	OpDec  Opcode = 0x25 // decrement top of stack in place
)

// Comparison and control flow
const (
	OpCmp Opcode = 0x30 // pop two, set condition flags
	OpJmp Opcode = 0x31 // unconditional jump
	OpJe  Opcode = 0x32 // jump if Equal
	OpJne Opcode = 0x33 // jump if NotEqual
	OpJg  Opcode = 0x34 // jump if Greater
	OpJl  Opcode = 0x35 // jump if Less
	OpJge Opcode = 0x36 // jump if GreaterOrEqual
	OpJle Opcode = 0x37 // jump if LessOrEqual
)

// Miscellaneous
const (
	OpDmp    Opcode = 0x40 // print top of stack without popping
	OpLabel  Opcode = 0x41 // address marker, no runtime effect
	OpNative Opcode = 0x42 // invoke a registered host function
	OpHalt   Opcode = 0x43 // stop execution
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandClass describes what kind of operand an opcode carries. The
// assembler, disassembler, and engine all validate against it.
type OperandClass byte

const (
	NoArg        OperandClass = iota // operand must be None
	ImmediateArg                     // any pushable value
	TargetArg                        // label name, resolved to an address
	NameArg                          // bare identifier (label, native)
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string       // mnemonic, as written in assembly
	Operand OperandClass // operand expectation
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:  {"nop", NoArg},
	OpPush: {"push", ImmediateArg},
	OpPop:  {"pop", NoArg},
	OpSwap: {"swap", NoArg},
	OpDup:  {"dup", NoArg},

	OpFAdd: {"fadd", NoArg},
	OpFSub: {"fsub", NoArg},
	OpFMul: {"fmul", NoArg},
	OpFDiv: {"fdiv", NoArg},

	OpIAdd: {"iadd", NoArg},
	OpISub: {"isub", NoArg},
	OpIMul: {"imul", NoArg},
	OpIDiv: {"idiv", NoArg},
	OpInc:  {"inc", NoArg},
	OpDec:  {"dec", NoArg},

	OpCmp: {"cmp", NoArg},
	OpJmp: {"jmp", TargetArg},
	OpJe:  {"je", TargetArg},
	OpJne: {"jne", TargetArg},
	OpJg:  {"jg", TargetArg},
	OpJl:  {"jl", TargetArg},
	OpJge: {"jge", TargetArg},
	OpJle: {"jle", TargetArg},

	OpDmp:    {"dmp", NoArg},
	OpLabel:  {"label", NameArg},
	OpNative: {"native", NameArg},
	OpHalt:   {"halt", NoArg},
}

// mnemonics is the reverse of opcodeTable, built once for the assembler.
var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.Name] = op
	}
	return m
}()

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Operand: NoArg}
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// OpcodeForMnemonic returns the opcode for an assembly mnemonic.
func OpcodeForMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonics[name]
	return op, ok
}

// IsJump reports whether op redirects the instruction pointer.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJmp, OpJe, OpJne, OpJg, OpJl, OpJge, OpJle:
		return true
	default:
		return false
	}
}
