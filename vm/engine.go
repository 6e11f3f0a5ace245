package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ---------------------------------------------------------------------------
// Engine errors
// ---------------------------------------------------------------------------

var (
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrUnknownNative   = errors.New("unknown native function")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrMissingOperand  = errors.New("missing operand")
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrUnknownLabel    = errors.New("unknown label")
)

// RuntimeError is the structured failure surfaced by a run. It carries the
// instruction pointer and source path for diagnostics and unwraps to one of
// the sentinel errors above.
type RuntimeError struct {
	IP   int
	Op   Opcode
	File string
	Err  error
}

func (e *RuntimeError) Error() string {
	file := e.File
	if file == "" {
		file = "<program>"
	}
	return fmt.Sprintf("%s: at %04d (%s): %v", file, e.IP, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// NativeFunc is a host-provided callback invokable from bytecode. Arguments
// and results travel over the operand stack via Push and Pop.
type NativeFunc func(e *Engine) error

// Engine executes a Program. It owns an operand stack of Values, the
// instruction pointer, the condition flags, a resolved label map, and a
// native-function table. One engine serves one run; nothing is shared.
type Engine struct {
	program Program
	labels  map[string]int
	natives map[string]NativeFunc
	strings *StringTable
	out     io.Writer
	file    string

	ip     int
	halted bool
	flags  Flags
	stack  []Value

	trace func(ip int, in Instruction)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithOutput directs dmp diagnostics to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

// WithFilePath records the source path reported in runtime errors.
func WithFilePath(path string) Option {
	return func(e *Engine) { e.file = path }
}

// WithStringTable shares an existing string pool, typically the one the
// assembler or bundle loader populated.
func WithStringTable(st *StringTable) Option {
	return func(e *Engine) { e.strings = st }
}

// WithTrace installs a hook invoked before each instruction executes.
func WithTrace(fn func(ip int, in Instruction)) Option {
	return func(e *Engine) { e.trace = fn }
}

// NewEngine builds an engine for the given program. Labels are resolved
// here, once: jump operands carrying names are rewritten to instruction
// indices, and unknown or duplicate labels fail before the first step.
func NewEngine(program Program, opts ...Option) (*Engine, error) {
	e := &Engine{
		natives: make(map[string]NativeFunc),
		out:     os.Stdout,
		stack:   make([]Value, 0, 64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strings == nil {
		e.strings = NewStringTable()
	}

	labels, err := ResolveLabels(program)
	if err != nil {
		return nil, err
	}
	e.labels = labels

	e.program, err = resolveTargets(program, labels)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveLabels scans a program for label instructions and returns the
// label-to-address map. Duplicate names are an error.
func ResolveLabels(p Program) (map[string]int, error) {
	labels := make(map[string]int)
	for i, in := range p {
		if in.Op != OpLabel {
			continue
		}
		if in.Arg.Kind() != OperandStr {
			return nil, fmt.Errorf("%w: label at %04d requires a name", ErrMissingOperand, i)
		}
		name := in.Arg.Str()
		if prev, ok := labels[name]; ok {
			return nil, fmt.Errorf("%w: %q at %04d (first defined at %04d)",
				ErrDuplicateLabel, name, i, prev)
		}
		labels[name] = i
	}
	return labels, nil
}

// resolveTargets rewrites jump operands from label names to instruction
// indices. The engine holds this resolved copy; the caller's program is
// untouched.
func resolveTargets(p Program, labels map[string]int) (Program, error) {
	resolved := make(Program, len(p))
	copy(resolved, p)
	for i, in := range resolved {
		if !in.Op.IsJump() {
			continue
		}
		switch in.Arg.Kind() {
		case OperandStr:
			addr, ok := labels[in.Arg.Str()]
			if !ok {
				return nil, fmt.Errorf("%w: %q at %04d", ErrUnknownLabel, in.Arg.Str(), i)
			}
			resolved[i].Arg = UintOperand(uint64(addr))
		case OperandUint64:
			// Already a resolved address.
		default:
			return nil, fmt.Errorf("%w: jump at %04d needs a label or address", ErrMissingOperand, i)
		}
	}
	return resolved, nil
}

// RegisterNative installs a host callback under the given name. The table
// is populated before Run and read-only during execution.
func (e *Engine) RegisterNative(name string, fn NativeFunc) {
	e.natives[name] = fn
}

// ---------------------------------------------------------------------------
// Stack access (also the native-function calling convention)
// ---------------------------------------------------------------------------

// Push places a value on top of the operand stack.
func (e *Engine) Push(v Value) {
	e.stack = append(e.stack, v)
}

// Pop removes and returns the top of the operand stack.
func (e *Engine) Pop() (Value, error) {
	if len(e.stack) == 0 {
		return Value(0), ErrStackUnderflow
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v, nil
}

// peek returns the value n slots below the top without popping.
func (e *Engine) peek(n int) (Value, error) {
	if len(e.stack) <= n {
		return Value(0), ErrStackUnderflow
	}
	return e.stack[len(e.stack)-1-n], nil
}

// Depth returns the number of values on the operand stack.
func (e *Engine) Depth() int {
	return len(e.stack)
}

// Stack returns a copy of the operand stack, bottom first.
func (e *Engine) Stack() []Value {
	out := make([]Value, len(e.stack))
	copy(out, e.stack)
	return out
}

// Halted reports whether the engine has reached its terminal state.
func (e *Engine) Halted() bool {
	return e.halted
}

// IP returns the current instruction pointer.
func (e *Engine) IP() int {
	return e.ip
}

// Flags returns the current condition flags.
func (e *Engine) Flags() Flags {
	return e.flags
}

// Strings returns the engine's string pool.
func (e *Engine) Strings() *StringTable {
	return e.strings
}

// Labels returns the resolved label-to-address map.
func (e *Engine) Labels() map[string]int {
	return e.labels
}

// ---------------------------------------------------------------------------
// Fetch-decode-execute loop
// ---------------------------------------------------------------------------

// Run executes the program to completion. The loop fetches the instruction
// at ip, dispatches on its opcode, and advances ip by one unless a jump
// redirected it. Running past the end of the program is an implicit halt.
// Any failure stops the run immediately and is returned as a *RuntimeError.
func (e *Engine) Run() error {
	for !e.halted && e.ip >= 0 && e.ip < len(e.program) {
		in := e.program[e.ip]
		if e.trace != nil {
			e.trace(e.ip, in)
		}
		next := e.ip + 1
		if err := e.step(in, &next); err != nil {
			e.halted = true
			return &RuntimeError{IP: e.ip, Op: in.Op, File: e.file, Err: err}
		}
		e.ip = next
	}
	e.halted = true
	return nil
}

// step executes a single instruction. next holds the already-advanced
// instruction pointer; jumps overwrite it.
func (e *Engine) step(in Instruction, next *int) error {
	switch in.Op {
	case OpNop, OpLabel:
		// label carries an address for the resolution pass; at runtime
		// both are inert.
		return nil

	case OpPush:
		v, err := e.operandValue(in.Arg)
		if err != nil {
			return err
		}
		e.Push(v)
		return nil

	case OpPop:
		_, err := e.Pop()
		return err

	case OpSwap:
		if len(e.stack) < 2 {
			return ErrStackUnderflow
		}
		top := len(e.stack) - 1
		e.stack[top], e.stack[top-1] = e.stack[top-1], e.stack[top]
		return nil

	case OpDup:
		v, err := e.peek(0)
		if err != nil {
			return err
		}
		e.Push(v)
		return nil

	case OpFAdd, OpFSub, OpFMul, OpFDiv:
		return e.floatArith(in.Op)

	case OpIAdd, OpISub, OpIMul, OpIDiv:
		return e.intArith(in.Op)

	case OpInc:
		return e.stepTop(1)

	case OpDec:
		return e.stepTop(-1)

	case OpCmp:
		return e.compare()

	case OpJmp, OpJe, OpJne, OpJg, OpJl, OpJge, OpJle:
		return e.jump(in, next)

	case OpDmp:
		v, err := e.peek(0)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, e.FormatValue(v))
		return nil

	case OpNative:
		return e.callNative(in.Arg)

	case OpHalt:
		e.halted = true
		return nil

	default:
		return fmt.Errorf("%w: opcode 0x%02X", ErrInvalidEncoding, byte(in.Op))
	}
}

// operandValue converts an instruction operand into a stack value.
func (e *Engine) operandValue(arg Operand) (Value, error) {
	switch arg.Kind() {
	case OperandBoxed:
		return arg.Boxed(), nil
	case OperandInt64:
		v, ok := TryFromInt64(arg.Int64())
		if !ok {
			return Value(0), fmt.Errorf("%w: %d does not fit 48 bits", ErrValueOutOfRange, arg.Int64())
		}
		return v, nil
	case OperandUint64:
		v, ok := TryFromUint64(arg.Uint64())
		if !ok {
			return Value(0), fmt.Errorf("%w: %d does not fit 48 bits", ErrValueOutOfRange, arg.Uint64())
		}
		return v, nil
	case OperandFloat:
		return FromFloat64(arg.Float64()), nil
	case OperandStr:
		return e.strings.StrValue(arg.Str()), nil
	default:
		return Value(0), fmt.Errorf("%w: push requires an operand", ErrMissingOperand)
	}
}

// binaryOperands inspects the two top stack slots without consuming them.
// Failing instructions must leave the stack exactly as it was, so operands
// are validated before any pop.
func (e *Engine) binaryOperands() (a, b Value, err error) {
	if len(e.stack) < 2 {
		return 0, 0, ErrStackUnderflow
	}
	b = e.stack[len(e.stack)-1] // right operand, popped first
	a = e.stack[len(e.stack)-2]
	return a, b, nil
}

// consume2 removes the two operands previously inspected.
func (e *Engine) consume2() {
	e.stack = e.stack[:len(e.stack)-2]
}

func (e *Engine) floatArith(op Opcode) error {
	a, b, err := e.binaryOperands()
	if err != nil {
		return err
	}
	if !a.IsFloat() || !b.IsFloat() {
		return fmt.Errorf("%w: %s needs two floats, have %s and %s", ErrTypeMismatch, op, a.Kind(), b.Kind())
	}
	x, y := a.Float64(), b.Float64()
	var r float64
	switch op {
	case OpFAdd:
		r = x + y
	case OpFSub:
		r = x - y
	case OpFMul:
		r = x * y
	default: // OpFDiv
		if y == 0 {
			return ErrDivisionByZero
		}
		r = x / y
	}
	e.consume2()
	e.Push(FromFloat64(r))
	return nil
}

func (e *Engine) intArith(op Opcode) error {
	a, b, err := e.binaryOperands()
	if err != nil {
		return err
	}
	if a.Kind() != b.Kind() {
		return fmt.Errorf("%w: %s needs matching integer kinds, have %s and %s",
			ErrTypeMismatch, op, a.Kind(), b.Kind())
	}

	switch a.Kind() {
	case KindInt64:
		r, err := intOp(op, a.Int64(), b.Int64())
		if err != nil {
			return err
		}
		v, ok := TryFromInt64(r)
		if !ok {
			return fmt.Errorf("%w: %s result %d does not fit 48 bits", ErrValueOutOfRange, op, r)
		}
		e.consume2()
		e.Push(v)
		return nil

	case KindUint64:
		r, err := uintOp(op, a.Uint64(), b.Uint64())
		if err != nil {
			return err
		}
		v, ok := TryFromUint64(r)
		if !ok {
			return fmt.Errorf("%w: %s result %d does not fit 48 bits", ErrValueOutOfRange, op, r)
		}
		e.consume2()
		e.Push(v)
		return nil

	case KindByte:
		// Byte arithmetic wraps mod 256, matching Go's byte semantics.
		x, y := a.Byte(), b.Byte()
		var r byte
		switch op {
		case OpIAdd:
			r = x + y
		case OpISub:
			r = x - y
		case OpIMul:
			r = x * y
		default: // OpIDiv
			if y == 0 {
				return ErrDivisionByZero
			}
			r = x / y
		}
		e.consume2()
		e.Push(FromByte(r))
		return nil

	default:
		return fmt.Errorf("%w: %s needs integers, have %s", ErrTypeMismatch, op, a.Kind())
	}
}

func intOp(op Opcode, x, y int64) (int64, error) {
	switch op {
	case OpIAdd:
		return x + y, nil
	case OpISub:
		return x - y, nil
	case OpIMul:
		r := x * y
		if x != 0 && r/x != y {
			return 0, fmt.Errorf("%w: %d * %d overflows", ErrValueOutOfRange, x, y)
		}
		return r, nil
	default: // OpIDiv
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	}
}

func uintOp(op Opcode, x, y uint64) (uint64, error) {
	switch op {
	case OpIAdd:
		return x + y, nil
	case OpISub:
		if y > x {
			return 0, fmt.Errorf("%w: %d - %d underflows", ErrValueOutOfRange, x, y)
		}
		return x - y, nil
	case OpIMul:
		r := x * y
		if x != 0 && r/x != y {
			return 0, fmt.Errorf("%w: %d * %d overflows", ErrValueOutOfRange, x, y)
		}
		return r, nil
	default: // OpIDiv
		if y == 0 {
			return 0, ErrDivisionByZero
		}
		return x / y, nil
	}
}

// stepTop adjusts the top of stack by delta in place, preserving its kind.
func (e *Engine) stepTop(delta int64) error {
	if len(e.stack) == 0 {
		return ErrStackUnderflow
	}
	top := len(e.stack) - 1
	v := e.stack[top]

	switch v.Kind() {
	case KindFloat:
		e.stack[top] = FromFloat64(v.Float64() + float64(delta))
	case KindInt64:
		r, ok := TryFromInt64(v.Int64() + delta)
		if !ok {
			return fmt.Errorf("%w: result does not fit 48 bits", ErrValueOutOfRange)
		}
		e.stack[top] = r
	case KindUint64:
		n := v.Uint64()
		if delta < 0 {
			if n == 0 {
				return fmt.Errorf("%w: uint64 decrement below zero", ErrValueOutOfRange)
			}
			n--
		} else {
			n++
		}
		r, ok := TryFromUint64(n)
		if !ok {
			return fmt.Errorf("%w: result does not fit 48 bits", ErrValueOutOfRange)
		}
		e.stack[top] = r
	case KindByte:
		e.stack[top] = FromByte(v.Byte() + byte(delta))
	default:
		return fmt.Errorf("%w: cannot step a %s value", ErrTypeMismatch, v.Kind())
	}
	return nil
}

// compare pops two values and sets exactly the flag combination consistent
// with their ordering: one of Equal/Greater/Less, plus the matching
// inclusive and negated forms.
func (e *Engine) compare() error {
	a, b, err := e.binaryOperands()
	if err != nil {
		return err
	}

	var ord int
	switch {
	case a.IsFloat() && b.IsFloat():
		x, y := a.Float64(), b.Float64()
		switch {
		case x == y:
			ord = 0
		case x > y:
			ord = 1
		default:
			ord = -1
		}
	case a.Kind() == b.Kind() && a.Kind() == KindInt64:
		ord = orderInt64(a.Int64(), b.Int64())
	case a.Kind() == b.Kind() && a.Kind() == KindUint64:
		ord = orderUint64(a.Uint64(), b.Uint64())
	case a.Kind() == b.Kind() && a.Kind() == KindByte:
		ord = orderInt64(int64(a.Byte()), int64(b.Byte()))
	default:
		return fmt.Errorf("%w: cmp on %s and %s", ErrTypeMismatch, a.Kind(), b.Kind())
	}
	e.consume2()

	e.flags.Clear()
	switch {
	case ord == 0:
		e.flags.Set(FlagEqual)
		e.flags.Set(FlagGreaterEq)
		e.flags.Set(FlagLessEq)
	case ord > 0:
		e.flags.Set(FlagGreater)
		e.flags.Set(FlagGreaterEq)
		e.flags.Set(FlagNotEqual)
	default:
		e.flags.Set(FlagLess)
		e.flags.Set(FlagLessEq)
		e.flags.Set(FlagNotEqual)
	}
	return nil
}

func orderInt64(x, y int64) int {
	switch {
	case x == y:
		return 0
	case x > y:
		return 1
	default:
		return -1
	}
}

func orderUint64(x, y uint64) int {
	switch {
	case x == y:
		return 0
	case x > y:
		return 1
	default:
		return -1
	}
}

// jump redirects the instruction pointer when its condition holds. Targets
// were resolved to indices before the run; a target at or past the end of
// the program simply ends the loop, the same implicit halt as falling off
// the end.
func (e *Engine) jump(in Instruction, next *int) error {
	if in.Arg.Kind() != OperandUint64 {
		return fmt.Errorf("%w: unresolved jump target", ErrMissingOperand)
	}
	taken := false
	switch in.Op {
	case OpJmp:
		taken = true
	case OpJe:
		taken = e.flags.Test(FlagEqual)
	case OpJne:
		taken = e.flags.Test(FlagNotEqual)
	case OpJg:
		taken = e.flags.Test(FlagGreater)
	case OpJl:
		taken = e.flags.Test(FlagLess)
	case OpJge:
		taken = e.flags.Test(FlagGreaterEq)
	case OpJle:
		taken = e.flags.Test(FlagLessEq)
	}
	if taken {
		*next = int(in.Arg.Uint64())
	}
	return nil
}

func (e *Engine) callNative(arg Operand) error {
	if arg.Kind() != OperandStr {
		return fmt.Errorf("%w: native requires a name", ErrMissingOperand)
	}
	name := arg.Str()
	fn, ok := e.natives[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNative, name)
	}
	if err := fn(e); err != nil {
		return fmt.Errorf("native %q: %w", name, err)
	}
	return nil
}

// FormatValue renders a value for dmp output, resolving string handles
// through the engine's pool.
func (e *Engine) FormatValue(v Value) string {
	if v.IsStr() {
		return "str(" + strconv.Quote(e.strings.Name(v.StringID())) + ")"
	}
	return v.String()
}
