package asm

import (
	"errors"
	"strings"
	"testing"

	"github.com/heronvm/heron/vm"
)

func TestAssembleBasicProgram(t *testing.T) {
	src := `
; add two integers
push 5
push 3
iadd
halt
`
	p, err := Assemble(src, "add.hasm")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	want := vm.Program{
		vm.NewInstruction(vm.OpPush, vm.IntOperand(5)),
		vm.NewInstruction(vm.OpPush, vm.IntOperand(3)),
		vm.Inst(vm.OpIAdd),
		vm.Inst(vm.OpHalt),
	}
	if len(p) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(p), len(want))
	}
	for i := range want {
		if p[i].Op != want[i].Op || !p[i].Arg.Equal(want[i].Arg) {
			t.Errorf("instruction %d: got %v, want %v", i, p[i], want[i])
		}
	}
}

func TestAssembleOperandLexing(t *testing.T) {
	tests := []struct {
		name string
		line string
		want vm.Operand
	}{
		{"int", "push 42", vm.IntOperand(42)},
		{"negative int", "push -7", vm.IntOperand(-7)},
		{"hex int", "push 0xff", vm.IntOperand(255)},
		{"uint", "push 42u", vm.UintOperand(42)},
		{"hex uint", "push 0x10u", vm.UintOperand(16)},
		{"float", "push 3.5", vm.FloatOperand(3.5)},
		{"float exponent", "push 1e3", vm.FloatOperand(1000)},
		{"negative float", "push -2.25", vm.FloatOperand(-2.25)},
		{"string", `push "hello world"`, vm.StrOperand("hello world")},
		{"string with semicolon", `push "a;b"`, vm.StrOperand("a;b")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Assemble(tt.line, "t")
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			if len(p) != 1 || !p[0].Arg.Equal(tt.want) {
				t.Errorf("got %v, want operand %v", p, tt.want)
			}
		})
	}
}

func TestAssembleLabelsAndJumps(t *testing.T) {
	src := `
push 2
push 2
cmp
je L
push 0
jmp END
L:
push 1
label END
halt
`
	p, err := Assemble(src, "branch.hasm")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Both label spellings produce label instructions.
	if p[6].Op != vm.OpLabel || p[6].Arg.Str() != "L" {
		t.Errorf("instruction 6 = %v, want label L", p[6])
	}
	if p[8].Op != vm.OpLabel || p[8].Arg.Str() != "END" {
		t.Errorf("instruction 8 = %v, want label END", p[8])
	}

	// The assembled program runs and takes the equal branch.
	e, err := vm.NewEngine(p)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stack := e.Stack()
	if len(stack) != 1 || stack[0] != vm.FromInt64(1) {
		t.Errorf("stack = %v, want [int64(1)]", stack)
	}
}

func TestAssembleComments(t *testing.T) {
	src := "push 1 ; trailing comment\n; full line\nhalt"
	p, err := Assemble(src, "t")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(p) != 2 {
		t.Errorf("got %d instructions, want 2", len(p))
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line string // expected position fragment
	}{
		{"unknown mnemonic", "frobnicate", "t:1:"},
		{"operand on bare op", "halt 3", "t:1:"},
		{"missing push operand", "push", "t:1:"},
		{"missing jump target", "jmp", "t:1:"},
		{"numeric jump target", "jmp 5", "t:1:"},
		{"bad integer", "push 12abc", "t:1:"},
		{"bad string", `push "unterminated`, "t:1:"},
		{"bad label sugar", "9lives:", "t:1:"},
		{"error on later line", "push 1\nbogus", "t:2:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src, "t")
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("err = %v, want ErrSyntax", err)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("err %q should contain position %q", err.Error(), tt.line)
			}
		})
	}
}

func TestAssembleNative(t *testing.T) {
	p, err := Assemble("push 1\nnative print\nhalt", "t")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if p[1].Op != vm.OpNative || p[1].Arg.Str() != "print" {
		t.Errorf("instruction 1 = %v, want native print", p[1])
	}
}
