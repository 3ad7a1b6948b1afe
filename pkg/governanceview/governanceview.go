// Package governanceview defines the Governance view abstraction shared by
// the compiler orchestrator and the notary engine: a read-only oracle over
// a governance document at a specific version. The governance
// storage/consensus protocol itself lives outside this repository; this
// package only defines and exercises the contract the rest of the node
// consumes it through.
package governanceview

import (
	"context"
	"errors"
	"fmt"

	"github.com/taple-mesh/node/pkg/digest"
)

// Error classes a View implementation maps its failures onto.
var (
	// ErrGovernanceNotFound covers governance-not-found, subject-not-found
	// and invalid-id responses from the governance view.
	ErrGovernanceNotFound = errors.New("governanceview: governance not found")
	// ErrChannelClosed covers a closed RPC channel to the governance view.
	ErrChannelClosed = errors.New("governanceview: channel closed")
	// ErrUnexpectedResponse covers any other ungraceful failure, including
	// a response that fails wire-schema validation.
	ErrUnexpectedResponse = errors.New("governanceview: unexpected response")
)

// ContractInfo is the raw contract source and metadata for a single schema
// at a specific governance version.
type ContractInfo struct {
	Raw string
}

// ContractEntry pairs a ContractInfo with the schema it is attached to.
type ContractEntry struct {
	Contract ContractInfo
	SchemaID string
}

// View is the read-only governance oracle consumed by the compiler
// orchestrator (C6) and the notary engine (C8).
type View interface {
	// GovernanceVersion returns the current version of the governance
	// document identified by govID.
	GovernanceVersion(ctx context.Context, govID digest.Digest) (uint64, error)
	// Contracts returns the (source, schema_id) pairs effective at the
	// given governance version, in the order the orchestrator should
	// process them.
	Contracts(ctx context.Context, govID digest.Digest, version uint64) ([]ContractEntry, error)
}

// WrapUnexpected wraps err with ErrUnexpectedResponse context, for View
// implementations translating a transport-level failure.
func WrapUnexpected(err error) error {
	return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
}
