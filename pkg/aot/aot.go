// Package aot implements the AOT Compiler (C4): it turns a validated WASM
// module into an engine-native precompiled artifact suitable for fast
// instantiation later. The artifact is opaque to the rest of the system
// but is only guaranteed deserializable by the same engine build that
// produced it — it is stamped with an EngineTag so a node upgrade can
// detect and rebuild stale
// artifacts instead of trusting a blob the running engine may silently
// misinterpret.
package aot

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
)

// EngineVersion is the semver tag stamped onto every artifact produced by
// this build. Bump it whenever the wazero version or compilation settings
// change in a way that can invalidate previously cached artifacts.
const EngineVersion = "1.0.0"

// ErrAotFailed covers any failure compiling a module ahead-of-time.
var ErrAotFailed = errors.New("aot: precompilation failed")

// ErrArtifactRejected covers a stored artifact that cannot be trusted: it
// was stamped by an incompatible engine version, its blob failed to
// untar/gunzip, or recompiling against it did not reproduce a usable
// module. This is always a returned error, never a panic or process
// abort.
var ErrArtifactRejected = errors.New("aot: artifact rejected")

// ErrScratchDirFailed covers a failure to create the scratch directory a
// Precompile or Load call stages its compilation cache under, distinct
// from every other failure mode folded into ErrAotFailed /
// ErrArtifactRejected: the disk is unavailable or out of space before any
// compilation work starts.
var ErrScratchDirFailed = errors.New("aot: scratch directory creation failed")

// Artifact is a CompiledArtifact: an opaque, engine-specific blob plus the
// WASM bytes it was derived from (retained so Load can replay the
// compilation-cache hit; the cache's content-addressing means a mismatched
// wasmBytes simply produces a fresh compile, never corruption).
type Artifact struct {
	WasmBytes []byte
	Blob      []byte
	EngineTag string
}

// Compiler drives wazero's ahead-of-time compilation pipeline.
type Compiler struct {
	scratchRoot string
}

// New builds a Compiler that stages its compilation caches under
// scratchRoot.
func New(scratchRoot string) *Compiler {
	return &Compiler{scratchRoot: scratchRoot}
}

// Precompile ahead-of-time compiles wasmBytes and returns the resulting
// Artifact.
func (c *Compiler) Precompile(ctx context.Context, wasmBytes []byte) (*Artifact, error) {
	cacheDir := filepath.Join(c.scratchRoot, "cache-"+uuid.NewString())
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScratchDirFailed, err)
	}
	defer func() { _ = os.RemoveAll(cacheDir) }()

	cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAotFailed, err)
	}
	defer func() { _ = cache.Close(ctx) }()

	rtCfg := wazero.NewRuntimeConfig().WithCompilationCache(cache)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	defer func() { _ = rt.Close(ctx) }()

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAotFailed, err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	blob, err := tarGzipDir(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: packing cache blob: %v", ErrAotFailed, err)
	}

	return &Artifact{
		WasmBytes: append([]byte(nil), wasmBytes...),
		Blob:      blob,
		EngineTag: EngineVersion,
	}, nil
}

// Load reconstitutes a compiled module from a, checking engine
// compatibility first and treating any failure along the way as
// ErrArtifactRejected rather than trusting the blob unconditionally.
// Callers that receive ErrArtifactRejected should rebuild the artifact
// from source rather than retry Load.
func (c *Compiler) Load(ctx context.Context, a *Artifact) (wazero.Runtime, wazero.CompiledModule, error) {
	if err := checkEngineCompatible(a.EngineTag); err != nil {
		return nil, nil, err
	}

	cacheDir := filepath.Join(c.scratchRoot, "load-"+uuid.NewString())
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrScratchDirFailed, err)
	}

	if err := untarGzip(a.Blob, cacheDir); err != nil {
		_ = os.RemoveAll(cacheDir)
		return nil, nil, fmt.Errorf("%w: unpacking blob: %v", ErrArtifactRejected, err)
	}

	cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
	if err != nil {
		_ = os.RemoveAll(cacheDir)
		return nil, nil, fmt.Errorf("%w: %v", ErrArtifactRejected, err)
	}

	rtCfg := wazero.NewRuntimeConfig().WithCompilationCache(cache)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	compiled, err := rt.CompileModule(ctx, a.WasmBytes)
	if err != nil {
		_ = cache.Close(ctx)
		_ = rt.Close(ctx)
		_ = os.RemoveAll(cacheDir)
		return nil, nil, fmt.Errorf("%w: recompiling against cache: %v", ErrArtifactRejected, err)
	}

	return rt, compiled, nil
}

func checkEngineCompatible(tag string) error {
	stored, err := semver.NewVersion(tag)
	if err != nil {
		return fmt.Errorf("%w: invalid engine tag %q: %v", ErrArtifactRejected, tag, err)
	}
	running, err := semver.NewVersion(EngineVersion)
	if err != nil {
		return fmt.Errorf("%w: invalid running engine version %q: %v", ErrArtifactRejected, EngineVersion, err)
	}
	if stored.Major() != running.Major() {
		return fmt.Errorf("%w: artifact engine %s incompatible with running engine %s", ErrArtifactRejected, tag, EngineVersion)
	}
	return nil
}

func tarGzipDir(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func untarGzip(blob []byte, dest string) error {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by our own just-produced blob
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
}
