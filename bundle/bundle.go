// Package bundle persists compiled programs as CBOR containers. A bundle
// carries the program's instruction records (in the vm binary record
// format), its string pool, and identifying metadata, so a program can be
// assembled once and executed elsewhere.
package bundle

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/heronvm/heron/vm"
)

// Container format identity.
const (
	Magic   = "HERN"
	Version = uint32(1)
)

// Bundle error values
var (
	ErrInvalidMagic    = errors.New("invalid magic: expected HERN")
	ErrVersionMismatch = errors.New("bundle version mismatch")
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Bundle is the on-disk container for a compiled program.
type Bundle struct {
	Magic   string   `cbor:"magic"`
	Version uint32   `cbor:"version"`
	ID      string   `cbor:"id"` // assigned at creation, stable thereafter
	Name    string   `cbor:"name"`
	Strings []string `cbor:"strings"` // string pool, handle order
	Code    [][]byte `cbor:"code"`    // one binary record per instruction
}

// New builds a bundle from a program and its string pool. Each instruction
// is encoded through the vm record codec; an unencodable instruction fails
// the whole bundle.
func New(name string, p vm.Program, pool []string) (*Bundle, error) {
	code := make([][]byte, len(p))
	for i, in := range p {
		rec, err := vm.EncodeInstruction(in)
		if err != nil {
			return nil, fmt.Errorf("bundle: instruction %04d: %w", i, err)
		}
		code[i] = rec
	}
	return &Bundle{
		Magic:   Magic,
		Version: Version,
		ID:      uuid.New().String(),
		Name:    name,
		Strings: pool,
		Code:    code,
	}, nil
}

// Marshal serializes a bundle to CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// Unmarshal deserializes a bundle from CBOR bytes and validates its header.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	if b.Magic != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, b.Magic)
	}
	if b.Version != Version {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, Version, b.Version)
	}
	return &b, nil
}

// Program decodes the bundle's instruction records and rebuilds the string
// pool. A record with trailing or missing bytes is a corrupt bundle.
func (b *Bundle) Program() (vm.Program, *vm.StringTable, error) {
	st := vm.NewStringTable()
	for _, s := range b.Strings {
		st.Intern(s)
	}

	prog := make(vm.Program, 0, len(b.Code))
	for i, rec := range b.Code {
		in, n, err := vm.DecodeInstruction(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("bundle: instruction %04d: %w", i, err)
		}
		if n != len(rec) {
			return nil, nil, fmt.Errorf("bundle: instruction %04d: %d trailing bytes",
				i, len(rec)-n)
		}
		prog = append(prog, in)
	}
	return prog, st, nil
}

// WriteFile marshals a bundle and writes it to path.
func WriteFile(path string, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return fmt.Errorf("bundle: marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bundle: write %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and unmarshals a bundle from path.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
