// Package contractstore implements the Contract Cache (C5): a persistent
// mapping (governance_id, schema_id) -> (artifact_blob, source_hash,
// governance_version), with a distinguished slot for the built-in
// governance contract.
package contractstore

import (
	"context"
	"errors"

	"github.com/taple-mesh/node/pkg/digest"
)

// ErrNotFound is returned by Get and GetGovernance when no entry exists for
// the requested key.
var ErrNotFound = errors.New("contractstore: entry not found")

// GovernanceSchemaID is the reserved schema_id of the built-in governance
// contract's own slot: the pair (SentinelGovernanceID, GovernanceSchemaID).
const GovernanceSchemaID = "governance"

// Key identifies a cache slot: (governance_id, schema_id).
type Key struct {
	GovernanceID digest.Digest
	SchemaID     string
}

// Entry is a ContractCacheEntry.
type Entry struct {
	Artifact          []byte
	SourceHash        digest.Digest
	GovernanceVersion uint64
	EngineTag         string
}

// Store is the Contract Cache's external contract. Implementations must
// make Put atomic: a concurrent Get never observes a torn write.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, entry Entry) error

	// GetGovernance and PutGovernance address the distinguished built-in
	// governance contract slot, keyed internally by the sentinel
	// governance id and GovernanceSchemaID.
	GetGovernance(ctx context.Context) (Entry, error)
	PutGovernance(ctx context.Context, entry Entry) error
}

// SentinelGovernanceID is the fixed governance id under which the built-in
// governance contract's own entry is stored.
var SentinelGovernanceID = digest.Of([]byte("taple-mesh:sentinel-governance-contract"))

// GovernanceKey is the reserved Key of the built-in governance contract.
func GovernanceKey() Key {
	return Key{GovernanceID: SentinelGovernanceID, SchemaID: GovernanceSchemaID}
}
