package contractstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/contractstore"
	"github.com/taple-mesh/node/pkg/digest"
)

func TestMemStoreGetNotFound(t *testing.T) {
	m := contractstore.NewMemStore()
	_, err := m.Get(context.Background(), contractstore.Key{GovernanceID: digest.Of([]byte("g")), SchemaID: "s1"})
	assert.ErrorIs(t, err, contractstore.ErrNotFound)
}

func TestMemStorePutThenGet(t *testing.T) {
	m := contractstore.NewMemStore()
	key := contractstore.Key{GovernanceID: digest.Of([]byte("g")), SchemaID: "s1"}
	entry := contractstore.Entry{Artifact: []byte("blob"), SourceHash: digest.Of([]byte("src")), GovernanceVersion: 2}

	require.NoError(t, m.Put(context.Background(), key, entry))

	got, err := m.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, entry, got)
}

func TestMemStoreGovernanceSlot(t *testing.T) {
	m := contractstore.NewMemStore()
	entry := contractstore.Entry{Artifact: []byte("gov-blob"), SourceHash: digest.Of([]byte("gov-src")), GovernanceVersion: 0}

	require.NoError(t, m.PutGovernance(context.Background(), entry))

	got, err := m.GetGovernance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	_, err = m.Get(context.Background(), contractstore.Key{GovernanceID: digest.Of([]byte("other")), SchemaID: "s1"})
	assert.ErrorIs(t, err, contractstore.ErrNotFound)
}
