// Package asm assembles Heron text sources into executable programs.
//
// The source format is line oriented: one instruction per line, a mnemonic
// followed by at most one operand. Comments start with ';' and run to the
// end of the line. Labels are written either with the label instruction
// ("label loop") or with trailing-colon sugar ("loop:"); both produce the
// same label instruction, and jump targets stay symbolic until the engine's
// resolution pass.
package asm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/heronvm/heron/vm"
)

// ErrSyntax is wrapped by every assembly failure.
var ErrSyntax = errors.New("syntax error")

// Assemble turns source text into a Program. name is used in error
// positions ("name:line: message") and is typically the file path.
func Assemble(src, name string) (vm.Program, error) {
	var program vm.Program

	for lineno, raw := range strings.Split(src, "\n") {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		in, err := assembleLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, lineno+1, err)
		}
		program = append(program, in)
	}
	return program, nil
}

// stripComment removes a trailing ';' comment, honoring quoted strings.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			if !inString {
				inString = true
			} else if i == 0 || line[i-1] != '\\' {
				inString = false
			}
		case ';':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func assembleLine(line string) (vm.Instruction, error) {
	// Label sugar: "name:" is shorthand for "label name".
	if strings.HasSuffix(line, ":") && !strings.ContainsAny(line, " \t") {
		name := strings.TrimSuffix(line, ":")
		if !validIdentifier(name) {
			return vm.Instruction{}, fmt.Errorf("%w: bad label name %q", ErrSyntax, name)
		}
		return vm.NewInstruction(vm.OpLabel, vm.StrOperand(name)), nil
	}

	mnemonic, rest := splitMnemonic(line)
	op, ok := vm.OpcodeForMnemonic(mnemonic)
	if !ok {
		return vm.Instruction{}, fmt.Errorf("%w: unknown mnemonic %q", ErrSyntax, mnemonic)
	}

	switch op.Info().Operand {
	case vm.NoArg:
		if rest != "" {
			return vm.Instruction{}, fmt.Errorf("%w: %s takes no operand", ErrSyntax, mnemonic)
		}
		return vm.Inst(op), nil

	case vm.NameArg, vm.TargetArg:
		if !validIdentifier(rest) {
			return vm.Instruction{}, fmt.Errorf("%w: %s needs a name, got %q", ErrSyntax, mnemonic, rest)
		}
		return vm.NewInstruction(op, vm.StrOperand(rest)), nil

	default: // vm.ImmediateArg
		if rest == "" {
			return vm.Instruction{}, fmt.Errorf("%w: %s needs an operand", ErrSyntax, mnemonic)
		}
		arg, err := parseImmediate(rest)
		if err != nil {
			return vm.Instruction{}, err
		}
		return vm.NewInstruction(op, arg), nil
	}
}

func splitMnemonic(line string) (mnemonic, rest string) {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// parseImmediate lexes a push operand: a quoted string, a float (decimal
// point or exponent), an unsigned integer (trailing 'u'), or a signed
// integer. Hex integers are accepted with the usual 0x prefix.
func parseImmediate(tok string) (vm.Operand, error) {
	if strings.HasPrefix(tok, `"`) {
		s, err := strconv.Unquote(tok)
		if err != nil {
			return vm.Operand{}, fmt.Errorf("%w: bad string literal %s", ErrSyntax, tok)
		}
		return vm.StrOperand(s), nil
	}

	if strings.HasSuffix(tok, "u") || strings.HasSuffix(tok, "U") {
		n, err := strconv.ParseUint(tok[:len(tok)-1], 0, 64)
		if err != nil {
			return vm.Operand{}, fmt.Errorf("%w: bad unsigned literal %q", ErrSyntax, tok)
		}
		return vm.UintOperand(n), nil
	}

	if isFloatLiteral(tok) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return vm.Operand{}, fmt.Errorf("%w: bad float literal %q", ErrSyntax, tok)
		}
		return vm.FloatOperand(f), nil
	}

	n, err := strconv.ParseInt(tok, 0, 64)
	if err != nil {
		return vm.Operand{}, fmt.Errorf("%w: bad integer literal %q", ErrSyntax, tok)
	}
	return vm.IntOperand(n), nil
}

// isFloatLiteral reports whether a numeric token should parse as a float.
// Hex integers contain 'e' digits, so the prefix is checked first.
func isFloatLiteral(tok string) bool {
	if strings.HasPrefix(tok, "0x") || strings.HasPrefix(tok, "0X") ||
		strings.HasPrefix(tok, "-0x") || strings.HasPrefix(tok, "-0X") {
		return false
	}
	return strings.ContainsAny(tok, ".eE")
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case unicode.IsDigit(r):
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
