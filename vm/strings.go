package vm

import "sync"

// ---------------------------------------------------------------------------
// StringTable: interned strings backing Str values
// ---------------------------------------------------------------------------

// StringTable interns strings to stable 32-bit handles. Str values carry
// only a handle; the table owns the content. The table is populated while a
// program is assembled or loaded and is read-only during execution.
type StringTable struct {
	mu   sync.RWMutex
	byS  map[string]uint32 // content -> handle
	byID []string          // handle -> content
}

// NewStringTable creates a new empty string table.
func NewStringTable() *StringTable {
	return &StringTable{
		byS:  make(map[string]uint32),
		byID: make([]string, 0, 64),
	}
}

// Intern returns the handle for s, creating a new one if needed.
func (st *StringTable) Intern(s string) uint32 {
	// Fast path: read-only lookup
	st.mu.RLock()
	if id, ok := st.byS[s]; ok {
		st.mu.RUnlock()
		return id
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if id, ok := st.byS[s]; ok {
		return id
	}

	id := uint32(len(st.byID))
	st.byS[s] = id
	st.byID = append(st.byID, s)
	return id
}

// Lookup returns the handle for s, or 0 and false if not interned.
func (st *StringTable) Lookup(s string) (uint32, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	id, ok := st.byS[s]
	return id, ok
}

// Name returns the content for a handle, or "" if invalid.
func (st *StringTable) Name(id uint32) string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if int(id) >= len(st.byID) {
		return ""
	}
	return st.byID[id]
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// All returns all interned strings in handle order.
func (st *StringTable) All() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]string, len(st.byID))
	copy(result, st.byID)
	return result
}

// StrValue interns s and returns the corresponding Str value.
func (st *StringTable) StrValue(s string) Value {
	return FromStringID(st.Intern(s))
}
