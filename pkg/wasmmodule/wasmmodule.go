// Package wasmmodule implements the Module Validator (C2): given a compiled
// WASM module, it verifies every import matches the SDK set exactly, no
// extras and no omissions.
package wasmmodule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"

	"github.com/taple-mesh/node/pkg/sdkset"
)

// ErrInvalidImport is returned when a module imports a function the SDK set
// does not recognize, or imports a memory at all.
var ErrInvalidImport = errors.New("wasmmodule: invalid import")

// ErrMissingSDK is returned when a module fails to import one or more
// required SDK functions.
var ErrMissingSDK = errors.New("wasmmodule: missing required SDK import")

// Validate enumerates compiled's imports and rejects the module if it
// imports a memory, imports a function not present in sdk, or leaves any
// symbol in sdk unimported. Table and global imports are not inspected.
func Validate(compiled wazero.CompiledModule, sdk sdkset.Set) error {
	if n := len(compiled.ImportedMemories()); n > 0 {
		return fmt.Errorf("%w: module imports %d memories, contracts may only import functions", ErrInvalidImport, n)
	}

	pending := make(map[string]struct{}, sdk.Len())
	for _, name := range sdk.All() {
		pending[name] = struct{}{}
	}

	for _, fn := range compiled.ImportedFunctions() {
		_, name, isImport := fn.Import()
		if !isImport {
			continue
		}
		if !sdk.Contains(name) {
			return fmt.Errorf("%w: %q is not a recognized SDK function", ErrInvalidImport, name)
		}
		delete(pending, name)
	}

	if len(pending) > 0 {
		missing := make([]string, 0, len(pending))
		for name := range pending {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %v", ErrMissingSDK, missing)
	}

	return nil
}
