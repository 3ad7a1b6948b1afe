// Package sdkset defines the fixed set of host functions a contract module
// is permitted to import — the SDK Import Set (C1).
package sdkset

// Version identifies the SDK symbol set shipped with this binary. Bump it
// whenever Symbols changes; nothing reads it at runtime.
const Version = "1"

// Symbols is the fixed set of host functions a contract may import. It
// matches the original TAPLE governance-contract SDK surface exactly: a
// contract gets a byte-oriented read/write channel into the host and
// nothing else (no filesystem, no clock, no network).
var Symbols = []string{
	"alloc",
	"write_byte",
	"pointer_len",
	"read_byte",
}

// Set is a queryable view over Symbols.
type Set struct {
	members map[string]struct{}
}

// New builds a Set from the fixed Symbols list.
func New() Set {
	m := make(map[string]struct{}, len(Symbols))
	for _, s := range Symbols {
		m[s] = struct{}{}
	}
	return Set{members: m}
}

// Contains reports whether name is a recognized SDK import.
func (s Set) Contains(name string) bool {
	_, ok := s.members[name]
	return ok
}

// All returns every symbol in the set, in a stable order.
func (s Set) All() []string {
	out := make([]string, len(Symbols))
	copy(out, Symbols)
	return out
}

// Len reports the number of symbols in the set.
func (s Set) Len() int {
	return len(s.members)
}
