// Package toolchain implements the Toolchain Driver (C3): it writes
// contract source to a scratch workspace and invokes the external build
// tool targeting wasm32-unknown-unknown in release mode. The toolchain
// itself is an untrusted but cooperative subprocess: both stdout and
// stderr are captured, wall-clock is bounded by the caller's context, and a
// non-zero exit is surfaced as ErrBuildFailed without leaking the raw
// command line into the error.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"
)

// ErrWriteFile covers failures writing the source or manifest into the
// workspace.
var ErrWriteFile = errors.New("toolchain: failed to write workspace file")

// ErrFolderNotCreated covers failures creating the workspace directory
// tree.
var ErrFolderNotCreated = errors.New("toolchain: failed to create workspace folder")

// ErrBuildFailed covers a non-zero exit, or any other failure to run, the
// build tool.
var ErrBuildFailed = errors.New("toolchain: build failed")

// ErrRateLimited is returned when a build is rejected by the invocation
// rate limiter before ever touching the workspace or the mutex.
var ErrRateLimited = errors.New("toolchain: build rate limit exceeded")

// manifestTemplate is the fixed, node-supplied Cargo manifest pinning the
// contract runtime's SDK dependency. It is written once, on first use.
const manifestTemplate = `[package]
name = "contract"
version = "0.1.0"
edition = "2021"

[lib]
crate-type = ["cdylib"]

[profile.release]
lto = true
opt-level = "z"
`

// Driver writes contract source to a single shared scratch workspace and
// invokes the pinned build command against it. Invocations MUST be
// serialized: the workspace (manifest + source directory) is a
// single shared path, so the driver holds a mutex for the duration of each
// build rather than handing out per-call workspaces.
type Driver struct {
	contractsPath string
	buildCmd      string
	buildArgs     []string

	mu      sync.Mutex
	limiter *rate.Limiter
}

// Config configures a Driver.
type Config struct {
	// ContractsPath is the root of the scratch workspace.
	ContractsPath string
	// BuildCmd and BuildArgs are the pinned build invocation, e.g.
	// "cargo" and ["build", "--manifest-path=...", "--target",
	// "wasm32-unknown-unknown", "--release"]. ManifestPath is substituted
	// into any arg equal to the literal "MANIFEST_PATH".
	BuildCmd  string
	BuildArgs []string
	// RateLimit bounds how often Build may invoke the external toolchain,
	// independent of and in addition to the serialization mutex. A zero
	// value disables rate limiting.
	RateLimit rate.Limit
	RateBurst int
}

// New constructs a Driver. It does not touch the filesystem; the workspace
// is created lazily on first Build.
func New(cfg Config) *Driver {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	buildCmd := cfg.BuildCmd
	if buildCmd == "" {
		buildCmd = "cargo"
	}

	manifestPath := filepath.Join(cfg.ContractsPath, "Cargo.toml")
	args := make([]string, len(cfg.BuildArgs))
	copy(args, cfg.BuildArgs)
	if len(args) == 0 {
		args = []string{
			"build",
			"--manifest-path=" + manifestPath,
			"--target", "wasm32-unknown-unknown",
			"--release",
		}
	} else {
		for i, a := range args {
			if a == "MANIFEST_PATH" {
				args[i] = manifestPath
			}
		}
	}

	return &Driver{
		contractsPath: cfg.ContractsPath,
		buildCmd:      buildCmd,
		buildArgs:     args,
		limiter:       limiter,
	}
}

// WasmOutputPath is the fixed, stable location the build tool is expected
// to leave its output at.
func (d *Driver) WasmOutputPath() string {
	return filepath.Join(d.contractsPath, "target", "wasm32-unknown-unknown", "release", "contract.wasm")
}

func (d *Driver) ensureWorkspace() error {
	srcDir := filepath.Join(d.contractsPath, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrFolderNotCreated, err)
	}

	manifestPath := filepath.Join(d.contractsPath, "Cargo.toml")
	if _, err := os.Stat(manifestPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(manifestPath, []byte(manifestTemplate), 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFile, err)
		}
	} else if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFile, err)
	}

	return nil
}

// Build writes source to the workspace's canonical source path and invokes
// the pinned build tool, returning the path to the produced WASM artifact.
// Build serializes against all other concurrent Build calls on this Driver.
func (d *Driver) Build(ctx context.Context, source []byte) (string, error) {
	if d.limiter != nil && !d.limiter.Allow() {
		return "", ErrRateLimited
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureWorkspace(); err != nil {
		return "", err
	}

	srcPath := filepath.Join(d.contractsPath, "src", "lib.rs")
	if err := os.WriteFile(srcPath, source, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFile, err)
	}

	//nolint:gosec // G204: buildCmd/buildArgs are node-configured, not user input
	cmd := exec.CommandContext(ctx, d.buildCmd, d.buildArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w: %v, output: %s", ErrBuildFailed, err, out)
	}

	wasmPath := d.WasmOutputPath()
	if _, err := os.Stat(wasmPath); err != nil {
		return "", fmt.Errorf("%w: expected output not found at %s", ErrBuildFailed, wasmPath)
	}

	return wasmPath, nil
}
