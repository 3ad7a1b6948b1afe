// Package notary implements the Notary Engine (C8): the single authority on
// a node that guarantees at-most-one signature per (owner, subject, sn)
// pair. It is a line-for-line port of the original TAPLE notary's
// admission algorithm, with two deliberate improvements: per-key striped
// locking in place of a single shared lock, and checked error propagation
// throughout.
package notary

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/near/borsh-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/governanceview"
	"github.com/taple-mesh/node/pkg/keylock"
	"github.com/taple-mesh/node/pkg/notaryregister"
	"github.com/taple-mesh/node/pkg/observability"
	"github.com/taple-mesh/node/pkg/signer"
)

// Request is a NotaryRequest.
type Request struct {
	GovID          digest.Digest
	SubjectID      digest.Digest
	Owner          signer.PublicKey
	EventHash      digest.Digest
	Sn             uint64
	GovVersion     uint64
	OwnerSignature []byte
}

// Response is a NotaryResponse.
type Response struct {
	Signature        signer.Signature
	GovVersionNotary uint64
}

// payload is the deterministic 6-tuple serialized with BORSH before
// hashing. Field order is part of the wire contract: remote validators
// recompute this digest and must agree on it.
type payload struct {
	GovID      [digest.Size]byte
	SubjectID  [digest.Size]byte
	Owner      []byte
	EventHash  [digest.Size]byte
	Sn         uint64
	GovVersion uint64
}

// Engine admits notarization requests. The zero value is not usable;
// construct with New.
type Engine struct {
	view     governanceview.View
	register notaryregister.Store
	signer   signer.Signer
	locks    *keylock.Manager
	obs      *observability.Provider
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithObservability attaches a Provider so Admit calls emit spans and RED
// metrics. Omitting it leaves tracing and metrics disabled.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// New builds an Engine.
func New(view governanceview.View, register notaryregister.Store, sg signer.Signer, opts ...Option) *Engine {
	e := &Engine{
		view:     view,
		register: register,
		signer:   sg,
		locks:    keylock.New(keylock.DefaultStripes),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if e.obs == nil {
		return ctx, func(error) {}
	}
	return e.obs.TrackOperation(ctx, name, attrs...)
}

// Admit runs the full notarization admission algorithm.
//
// Commit-before-sign: the register is written (step 4) before the signer
// is invoked (step 6). If the signer then fails, the register has already
// advanced — this is deliberate, favoring safety over liveness: no two
// conflicting signatures can ever be produced, but a signer failure after
// commit requires the caller to retry the identical request. The retry runs
// every check again; the register already holds the same (sn, event_hash),
// so step 3 accepts it as an idempotent re-sign.
// Cancelling ctx is only honored before the register write; once committed,
// Admit runs to completion.
func (e *Engine) Admit(ctx context.Context, req Request) (resp Response, err error) {
	unlock := e.locks.Lock(lockKeyFor(req))
	defer unlock()

	ctx, done := e.track(ctx, "notary.Admit",
		attribute.String("governance_id", req.GovID.String()),
		attribute.String("subject_id", req.SubjectID.String()),
		attribute.Int64("sn", int64(req.Sn)),
	)
	defer func() { done(err) }()

	// Step 1: current governance version.
	currentGovVersion, err := e.view.GovernanceVersion(ctx, req.GovID)
	if err != nil {
		switch {
		case errors.Is(err, governanceview.ErrGovernanceNotFound):
			return Response{}, fmt.Errorf("%w: %v", ErrGovernanceNotFound, err)
		case errors.Is(err, governanceview.ErrChannelClosed):
			return Response{}, fmt.Errorf("%w: %v", ErrChannelError, err)
		default:
			return Response{}, fmt.Errorf("%w: %v", ErrGovApiUnexpectedResponse, err)
		}
	}

	// Step 2: refuse to endorse a future governance state.
	if currentGovVersion < req.GovVersion {
		return Response{}, fmt.Errorf("%w: current=%d requested=%d", ErrGovernanceVersionTooHigh, currentGovVersion, req.GovVersion)
	}

	// Step 3: monotonicity and hash-consistency against the register.
	key := notaryregister.Key{Owner: req.Owner, SubjectID: req.SubjectID}
	prev, err := e.register.Get(ctx, key)
	if err != nil && !errors.Is(err, notaryregister.ErrNotFound) {
		return Response{}, fmt.Errorf("%w: register read: %v", ErrGovApiUnexpectedResponse, err)
	}
	if err == nil {
		switch {
		case prev.LastSn > req.Sn:
			return Response{}, fmt.Errorf("%w: last_sn=%d requested_sn=%d", ErrEventSnLowerThanLastSigned, prev.LastSn, req.Sn)
		case prev.LastSn == req.Sn && prev.LastEventHash != req.EventHash:
			return Response{}, ErrDifferentHashForEvent
		}
	}

	// Step 4: commit-before-sign. Must be durable before step 5 begins.
	if err := e.register.Set(ctx, key, notaryregister.Record{LastEventHash: req.EventHash, LastSn: req.Sn}); err != nil {
		return Response{}, fmt.Errorf("%w: register write: %v", ErrGovApiUnexpectedResponse, err)
	}

	// Step 5: deterministic payload digest.
	digestBytes, err := signedPayloadDigest(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrSerializingError, err)
	}

	// Step 6: sign (digest, current_gov_version).
	signPayload := make([]byte, 0, digest.Size+8)
	signPayload = append(signPayload, digestBytes.Bytes()...)
	var versionBuf [8]byte
	binary.LittleEndian.PutUint64(versionBuf[:], currentGovVersion)
	signPayload = append(signPayload, versionBuf[:]...)

	sig, err := e.signer.Sign(signPayload)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrProtocolErrors, err)
	}

	// Step 7.
	return Response{Signature: sig, GovVersionNotary: currentGovVersion}, nil
}

func lockKeyFor(req Request) string {
	return string(req.Owner) + ":" + req.SubjectID.Hex()
}

func signedPayloadDigest(req Request) (digest.Digest, error) {
	p := payload{
		GovID:      req.GovID,
		SubjectID:  req.SubjectID,
		Owner:      req.Owner,
		EventHash:  req.EventHash,
		Sn:         req.Sn,
		GovVersion: req.GovVersion,
	}
	raw, err := borsh.Serialize(p)
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Of(raw), nil
}
