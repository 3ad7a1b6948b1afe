package governanceview

import (
	"context"
	"sync"

	"github.com/taple-mesh/node/pkg/digest"
)

// StaticView is an in-memory View, used by unit tests and by `node init`
// dry-runs where no live governance subsystem is reachable.
type StaticView struct {
	mu        sync.RWMutex
	versions  map[digest.Digest]uint64
	contracts map[versionKey][]ContractEntry
}

type versionKey struct {
	gov     digest.Digest
	version uint64
}

// NewStaticView builds an empty StaticView.
func NewStaticView() *StaticView {
	return &StaticView{
		versions:  make(map[digest.Digest]uint64),
		contracts: make(map[versionKey][]ContractEntry),
	}
}

// SetVersion fixes the reported governance version for govID.
func (v *StaticView) SetVersion(govID digest.Digest, version uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[govID] = version
}

// SetContracts fixes the contract list reported for (govID, version).
func (v *StaticView) SetContracts(govID digest.Digest, version uint64, entries []ContractEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.contracts[versionKey{govID, version}] = entries
}

// GovernanceVersion implements View.
func (v *StaticView) GovernanceVersion(_ context.Context, govID digest.Digest) (uint64, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ver, ok := v.versions[govID]
	if !ok {
		return 0, ErrGovernanceNotFound
	}
	return ver, nil
}

// Contracts implements View.
func (v *StaticView) Contracts(_ context.Context, govID digest.Digest, version uint64) ([]ContractEntry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entries, ok := v.contracts[versionKey{govID, version}]
	if !ok {
		// An absent version with a known governance id is an empty
		// contract list, not a not-found error: "no contracts reported"
		// is a valid, no-op response.
		if _, known := v.versions[govID]; known {
			return nil, nil
		}
		return nil, ErrGovernanceNotFound
	}
	out := make([]ContractEntry, len(entries))
	copy(out, entries)
	return out, nil
}
