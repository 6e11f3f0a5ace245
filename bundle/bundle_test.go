package bundle

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/heronvm/heron/vm"
)

func sampleProgram() (vm.Program, []string) {
	p := vm.Program{
		vm.NewInstruction(vm.OpPush, vm.IntOperand(5)),
		vm.NewInstruction(vm.OpPush, vm.StrOperand("greeting")),
		vm.NewInstruction(vm.OpNative, vm.StrOperand("print")),
		vm.Inst(vm.OpHalt),
	}
	return p, []string{"greeting"}
}

func TestBundleRoundTrip(t *testing.T) {
	prog, pool := sampleProgram()
	b, err := New("demo", prog, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.ID == "" {
		t.Error("bundle should be assigned an ID")
	}

	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "demo" || out.ID != b.ID {
		t.Errorf("metadata mismatch: got %q/%q", out.Name, out.ID)
	}

	got, st, err := out.Program()
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	if len(got) != len(prog) {
		t.Fatalf("decoded %d instructions, want %d", len(got), len(prog))
	}
	for i := range prog {
		if got[i].Op != prog[i].Op || !got[i].Arg.Equal(prog[i].Arg) {
			t.Errorf("instruction %d: got %v, want %v", i, got[i], prog[i])
		}
	}
	if st.Name(0) != "greeting" {
		t.Errorf("string pool: Name(0) = %q, want greeting", st.Name(0))
	}
}

func TestBundleDeterministicEncoding(t *testing.T) {
	prog, pool := sampleProgram()
	b, err := New("demo", prog, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d1, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	d2, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(d1) != string(d2) {
		t.Error("canonical encoding should be deterministic")
	}
}

func TestBundleRejectsBadHeader(t *testing.T) {
	prog, pool := sampleProgram()
	b, err := New("demo", prog, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b.Magic = "NOPE"
	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("err = %v, want ErrInvalidMagic", err)
	}

	b.Magic = Magic
	b.Version = 99
	data, err = Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("err = %v, want ErrVersionMismatch", err)
	}
}

func TestBundleRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err == nil {
		t.Error("garbage bytes should fail to unmarshal")
	}
}

func TestBundleRejectsCorruptRecord(t *testing.T) {
	prog, pool := sampleProgram()
	b, err := New("demo", prog, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.Code[0] = b.Code[0][:1] // truncate a record
	if _, _, err := b.Program(); !errors.Is(err, vm.ErrTruncatedRecord) {
		t.Errorf("err = %v, want ErrTruncatedRecord", err)
	}
}

func TestBundleFileRoundTrip(t *testing.T) {
	prog, pool := sampleProgram()
	b, err := New("demo", prog, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(t.TempDir(), "demo.hbc")
	if err := WriteFile(path, b); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if out.ID != b.ID || len(out.Code) != len(b.Code) {
		t.Error("file round trip lost data")
	}
}

func TestBundleExecutes(t *testing.T) {
	// A loaded bundle should run on a fresh engine with its own pool.
	prog := vm.Program{
		vm.NewInstruction(vm.OpPush, vm.IntOperand(5)),
		vm.NewInstruction(vm.OpPush, vm.IntOperand(3)),
		vm.Inst(vm.OpIAdd),
		vm.Inst(vm.OpHalt),
	}
	b, err := New("add", prog, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	loaded, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	got, st, err := loaded.Program()
	if err != nil {
		t.Fatalf("Program: %v", err)
	}

	e, err := vm.NewEngine(got, vm.WithStringTable(st))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	stack := e.Stack()
	if len(stack) != 1 || stack[0] != vm.FromInt64(8) {
		t.Errorf("stack = %v, want [int64(8)]", stack)
	}
}
