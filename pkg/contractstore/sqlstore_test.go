package contractstore_test

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/contractstore"
	"github.com/taple-mesh/node/pkg/digest"
)

func TestSQLStoreGetFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := contractstore.NewSQLStore(db, contractstore.DialectPostgres)
	key := contractstore.Key{GovernanceID: digest.Of([]byte("g")), SchemaID: "s1"}
	hash := digest.Of([]byte("source"))

	rows := sqlmock.NewRows([]string{"artifact", "source_hash", "governance_version", "engine_tag"}).
		AddRow([]byte("blob"), hash.Hex(), uint64(3), "1.0.0")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT artifact, source_hash, governance_version, engine_tag FROM contract_cache WHERE governance_id = $1 AND schema_id = $2")).
		WithArgs(key.GovernanceID.Hex(), "s1").
		WillReturnRows(rows)

	entry, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), entry.Artifact)
	assert.Equal(t, hash, entry.SourceHash)
	assert.Equal(t, uint64(3), entry.GovernanceVersion)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := contractstore.NewSQLStore(db, contractstore.DialectPostgres)
	key := contractstore.Key{GovernanceID: digest.Of([]byte("g")), SchemaID: "missing"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT artifact, source_hash, governance_version, engine_tag FROM contract_cache WHERE governance_id = $1 AND schema_id = $2")).
		WithArgs(key.GovernanceID.Hex(), "missing").
		WillReturnRows(sqlmock.NewRows([]string{"artifact", "source_hash", "governance_version", "engine_tag"}))

	_, err = store.Get(context.Background(), key)
	assert.ErrorIs(t, err, contractstore.ErrNotFound)
}

func TestSQLStorePutUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := contractstore.NewSQLStore(db, contractstore.DialectPostgres)
	key := contractstore.Key{GovernanceID: digest.Of([]byte("g")), SchemaID: "s1"}
	hash := digest.Of([]byte("source"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO contract_cache")).
		WithArgs(key.GovernanceID.Hex(), "s1", []byte("blob"), hash.Hex(), uint64(7), "1.0.0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Put(context.Background(), key, contractstore.Entry{
		Artifact: []byte("blob"), SourceHash: hash, GovernanceVersion: 7, EngineTag: "1.0.0",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
