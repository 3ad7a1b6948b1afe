package compiler

import (
	"fmt"

	"github.com/near/borsh-go"

	"github.com/taple-mesh/node/pkg/aot"
)

// artifactRecord is the BORSH-encoded on-disk shape of a CompiledArtifact:
// the original WASM bytes (retained so aot.Compiler.Load can replay its
// compilation-cache hit) plus the engine-native AOT blob and the engine tag
// it was stamped with.
type artifactRecord struct {
	WasmBytes []byte
	Blob      []byte
	EngineTag string
}

func encodeArtifact(a *aot.Artifact) ([]byte, error) {
	raw, err := borsh.Serialize(artifactRecord{
		WasmBytes: a.WasmBytes,
		Blob:      a.Blob,
		EngineTag: a.EngineTag,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBorshSerializeContractError, err)
	}
	return raw, nil
}

func decodeArtifact(raw []byte) (*aot.Artifact, error) {
	var rec artifactRecord
	if err := borsh.Deserialize(&rec, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAddContractFail, err)
	}
	return &aot.Artifact{
		WasmBytes: rec.WasmBytes,
		Blob:      rec.Blob,
		EngineTag: rec.EngineTag,
	}, nil
}
