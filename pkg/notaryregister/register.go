// Package notaryregister implements the Notary Register (C7): a persistent
// mapping (owner_key, subject_id) -> (last_event_hash, last_sn).
package notaryregister

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/signer"
)

// ErrNotFound is returned by Get when no record exists yet for a key.
var ErrNotFound = errors.New("notaryregister: record not found")

// Key is a NotaryKey: (owner, subject_id).
type Key struct {
	Owner     signer.PublicKey
	SubjectID digest.Digest
}

// OwnerHex renders the owner public key as lowercase hex, for use as a
// stable storage key component.
func (k Key) OwnerHex() string {
	return hex.EncodeToString(k.Owner)
}

// Record is a NotaryRecord.
type Record struct {
	LastEventHash digest.Digest
	LastSn        uint64
}

// Store is the Notary Register's external contract. Set must be durable
// before the caller is released: the notary engine relies on this for its
// commit-before-sign ordering.
type Store interface {
	Get(ctx context.Context, key Key) (Record, error)
	Set(ctx context.Context, key Key, record Record) error
}
