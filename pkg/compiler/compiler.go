// Package compiler implements the Compiler Orchestrator (C6): it bootstraps
// the governance contract once, and on each governance update diffs source
// hashes and versions, rebuilding only stale cache entries.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.opentelemetry.io/otel/attribute"

	"github.com/taple-mesh/node/pkg/aot"
	"github.com/taple-mesh/node/pkg/contractstore"
	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/governanceview"
	"github.com/taple-mesh/node/pkg/observability"
	"github.com/taple-mesh/node/pkg/sdkset"
	"github.com/taple-mesh/node/pkg/toolchain"
	"github.com/taple-mesh/node/pkg/wasmmodule"
)

// Orchestrator drives C1-C5 to keep the Contract Cache consistent with
// governance. At most one UpdateContracts batch may run at a time per
// Orchestrator.
type Orchestrator struct {
	view   governanceview.View
	cache  contractstore.Store
	driver *toolchain.Driver
	aotc   *aot.Compiler
	sdk    sdkset.Set
	obs    *observability.Provider

	mu sync.Mutex // serializes batches; TryLock enforces the singleton
}

// Option configures optional Orchestrator behavior.
type Option func(*Orchestrator)

// WithObservability attaches a Provider so UpdateContracts batches emit
// spans and RED metrics. Omitting it leaves tracing and metrics disabled.
func WithObservability(p *observability.Provider) Option {
	return func(o *Orchestrator) { o.obs = p }
}

// New builds an Orchestrator.
func New(view governanceview.View, cache contractstore.Store, driver *toolchain.Driver, aotc *aot.Compiler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		view:   view,
		cache:  cache,
		driver: driver,
		aotc:   aotc,
		sdk:    sdkset.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// track starts an observability span/RED-metric tracking scope for name if
// a Provider is configured, and is a no-op otherwise.
func (o *Orchestrator) track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if o.obs == nil {
		return ctx, func(error) {}
	}
	return o.obs.TrackOperation(ctx, name, attrs...)
}

// Init bootstraps the governance contract if it is not already present. It
// is idempotent: a second call on an already-bootstrapped cache is a no-op.
func (o *Orchestrator) Init(ctx context.Context) error {
	_, err := o.cache.GetGovernance(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, contractstore.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	entry, err := o.compileEntry(ctx, builtinGovernanceSource, 0)
	if err != nil {
		return err
	}

	if err := o.cache.PutGovernance(ctx, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// UpdateContracts runs a 5-step diff algorithm against the governance
// view's contract list for (govID, newGovVersion). Entries
// are processed in the order the governance view returns them; the first
// failure aborts the batch, leaving the cache at its last successfully
// written (and therefore consistent) state.
func (o *Orchestrator) UpdateContracts(ctx context.Context, govID digest.Digest, newGovVersion uint64) (err error) {
	if !o.mu.TryLock() {
		return ErrAlreadyRunning
	}
	defer o.mu.Unlock()

	ctx, done := o.track(ctx, "compiler.UpdateContracts",
		attribute.String("governance_id", govID.String()),
		attribute.Int64("governance_version", int64(newGovVersion)),
	)
	defer func() { done(err) }()

	entries, err := o.view.Contracts(ctx, govID, newGovVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGovernanceError, err)
	}

	for _, ce := range entries {
		if err := o.syncOne(ctx, govID, newGovVersion, ce); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) syncOne(ctx context.Context, govID digest.Digest, newGovVersion uint64, ce governanceview.ContractEntry) error {
	key := contractstore.Key{GovernanceID: govID, SchemaID: ce.SchemaID}
	newHash := digest.Of([]byte(ce.Contract.Raw))

	existing, err := o.cache.Get(ctx, key)
	switch {
	case err == nil:
		if existing.GovernanceVersion == newGovVersion {
			// Step 3: idempotent, already at this version.
			return nil
		}
		if existing.SourceHash == newHash {
			// Step 4: source unchanged, just bump the version stamp.
			existing.GovernanceVersion = newGovVersion
			if err := o.cache.Put(ctx, key, existing); err != nil {
				return fmt.Errorf("%w: %v", ErrDatabaseError, err)
			}
			return nil
		}
		// Step 5: source changed, fall through to full recompile.
	case errors.Is(err, contractstore.ErrNotFound):
		// Step 5: never seen, full recompile.
	default:
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	entry, err := o.compileEntry(ctx, ce.Contract.Raw, newGovVersion)
	if err != nil {
		return err
	}
	if err := o.cache.Put(ctx, key, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// compileEntry drives C3 -> C4 -> C2 for a single contract source and
// returns the ContractCacheEntry to store, with SourceHash set to the
// digest of source and GovernanceVersion set to govVersion.
func (o *Orchestrator) compileEntry(ctx context.Context, source string, govVersion uint64) (contractstore.Entry, error) {
	wasmPath, err := o.driver.Build(ctx, []byte(source))
	if err != nil {
		switch {
		case errors.Is(err, toolchain.ErrWriteFile):
			return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrWriteFileError, err)
		case errors.Is(err, toolchain.ErrFolderNotCreated):
			return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrFolderNotCreated, err)
		default:
			return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrCargoExecError, err)
		}
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrAddContractFail, err)
	}

	artifact, err := o.aotc.Precompile(ctx, wasmBytes)
	if err != nil {
		if errors.Is(err, aot.ErrScratchDirFailed) {
			return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrTempFolderCreationFailed, err)
		}
		return contractstore.Entry{}, fmt.Errorf("%w: %v", ErrAddContractFail, err)
	}

	if err := o.validateImports(ctx, wasmBytes); err != nil {
		return contractstore.Entry{}, err
	}

	raw, err := encodeArtifact(artifact)
	if err != nil {
		return contractstore.Entry{}, err
	}

	return contractstore.Entry{
		Artifact:          raw,
		SourceHash:        digest.Of([]byte(source)),
		GovernanceVersion: govVersion,
		EngineTag:         artifact.EngineTag,
	}, nil
}

func (o *Orchestrator) validateImports(ctx context.Context, wasmBytes []byte) error {
	rt := wazero.NewRuntime(ctx)
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAddContractFail, err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	if err := wasmmodule.Validate(compiled, o.sdk); err != nil {
		switch {
		case errors.Is(err, wasmmodule.ErrMissingSDK):
			return fmt.Errorf("%w: %v", ErrNoSDKFound, err)
		default:
			return fmt.Errorf("%w: %v", ErrInvalidImportFound, err)
		}
	}
	return nil
}
