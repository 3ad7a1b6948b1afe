package aot_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/aot"
)

// emptyModule is the smallest valid WASM binary: just the magic number and
// version, with no sections.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestPrecompileThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	c := aot.New(t.TempDir())

	artifact, err := c.Precompile(ctx, emptyModule)
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Blob)
	assert.Equal(t, aot.EngineVersion, artifact.EngineTag)

	rt, compiled, err := c.Load(ctx, artifact)
	require.NoError(t, err)
	defer func() { _ = rt.Close(ctx) }()
	defer func() { _ = compiled.Close(ctx) }()
}

func TestLoadRejectsIncompatibleEngineTag(t *testing.T) {
	ctx := context.Background()
	c := aot.New(t.TempDir())

	artifact, err := c.Precompile(ctx, emptyModule)
	require.NoError(t, err)
	artifact.EngineTag = "999.0.0"

	_, _, err = c.Load(ctx, artifact)
	assert.ErrorIs(t, err, aot.ErrArtifactRejected)
}

func TestPrecompileFailsOnUnwritableScratchRoot(t *testing.T) {
	ctx := context.Background()
	// A regular file in place of the scratch root makes every MkdirAll
	// under it fail with ENOTDIR.
	blocker := t.TempDir() + "/blocker"
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	c := aot.New(blocker)

	_, err := c.Precompile(ctx, emptyModule)
	assert.ErrorIs(t, err, aot.ErrScratchDirFailed)
}

func TestLoadRejectsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	c := aot.New(t.TempDir())

	artifact, err := c.Precompile(ctx, emptyModule)
	require.NoError(t, err)
	artifact.Blob = []byte("not a gzip stream")

	_, _, err = c.Load(ctx, artifact)
	assert.ErrorIs(t, err, aot.ErrArtifactRejected)
}
