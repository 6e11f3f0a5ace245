package vm

// ---------------------------------------------------------------------------
// Condition flags
// ---------------------------------------------------------------------------

// Flag identifies a single condition bit. Flags are written by cmp and read
// by the conditional jumps; nothing else touches them.
type Flag uint8

const (
	FlagEqual Flag = iota
	FlagGreater
	FlagLess
	FlagNotEqual
	FlagGreaterEq
	FlagLessEq
)

// String returns the flag name used in diagnostics.
func (f Flag) String() string {
	switch f {
	case FlagEqual:
		return "E"
	case FlagGreater:
		return "G"
	case FlagLess:
		return "L"
	case FlagNotEqual:
		return "NE"
	case FlagGreaterEq:
		return "GE"
	case FlagLessEq:
		return "LE"
	default:
		return "?"
	}
}

// Flags is a bitset of condition codes. Each flag owns one bit; setting or
// resetting a flag never disturbs the others.
type Flags uint8

// Set turns the given flag on.
func (fl *Flags) Set(f Flag) {
	*fl |= 1 << uint8(f)
}

// Reset turns the given flag off.
func (fl *Flags) Reset(f Flag) {
	*fl &^= 1 << uint8(f)
}

// Test reports whether the given flag is set.
func (fl Flags) Test(f Flag) bool {
	return fl&(1<<uint8(f)) != 0
}

// Clear resets every flag.
func (fl *Flags) Clear() {
	*fl = 0
}
