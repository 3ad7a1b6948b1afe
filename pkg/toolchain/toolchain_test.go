package toolchain_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/toolchain"
)

// fakeBuildArgs returns a shell invocation that stands in for the real
// build tool: it writes a fixed payload to the expected output path,
// proving the Driver wired the workspace and output location correctly
// without depending on an actual wasm toolchain being installed.
func fakeBuildArgs(contractsPath string) []string {
	outDir := filepath.Join(contractsPath, "target", "wasm32-unknown-unknown", "release")
	outFile := filepath.Join(outDir, "contract.wasm")
	script := fmt.Sprintf(`mkdir -p %q && printf 'wasm-bytes' > %q`, outDir, outFile)
	return []string{"-c", script}
}

func TestBuildWritesSourceAndProducesArtifact(t *testing.T) {
	dir := t.TempDir()
	d := toolchain.New(toolchain.Config{
		ContractsPath: dir,
		BuildCmd:      "sh",
		BuildArgs:     fakeBuildArgs(dir),
	})

	path, err := d.Build(context.Background(), []byte("fn main() {}"))
	require.NoError(t, err)
	assert.Equal(t, d.WasmOutputPath(), path)

	srcBytes, err := os.ReadFile(filepath.Join(dir, "src", "lib.rs"))
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", string(srcBytes))

	manifestBytes, err := os.ReadFile(filepath.Join(dir, "Cargo.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifestBytes), "cdylib")
}

func TestBuildSurfacesNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	d := toolchain.New(toolchain.Config{
		ContractsPath: dir,
		BuildCmd:      "sh",
		BuildArgs:     []string{"-c", "exit 1"},
	})

	_, err := d.Build(context.Background(), []byte("bad source"))
	assert.ErrorIs(t, err, toolchain.ErrBuildFailed)
}

func TestBuildMissingOutputIsBuildFailed(t *testing.T) {
	dir := t.TempDir()
	d := toolchain.New(toolchain.Config{
		ContractsPath: dir,
		BuildCmd:      "sh",
		BuildArgs:     []string{"-c", "true"},
	})

	_, err := d.Build(context.Background(), []byte("source"))
	assert.ErrorIs(t, err, toolchain.ErrBuildFailed)
}

func TestBuildRespectsRateLimit(t *testing.T) {
	dir := t.TempDir()
	d := toolchain.New(toolchain.Config{
		ContractsPath: dir,
		BuildCmd:      "sh",
		BuildArgs:     fakeBuildArgs(dir),
		RateLimit:     0.0001,
		RateBurst:     1,
	})

	_, err := d.Build(context.Background(), []byte("source"))
	require.NoError(t, err)

	_, err = d.Build(context.Background(), []byte("source again"))
	assert.ErrorIs(t, err, toolchain.ErrRateLimited)
}
