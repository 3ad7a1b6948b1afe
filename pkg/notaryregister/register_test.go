package notaryregister_test

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taple-mesh/node/pkg/digest"
	"github.com/taple-mesh/node/pkg/notaryregister"
)

func testKey() notaryregister.Key {
	return notaryregister.Key{
		Owner:     []byte{0x01, 0x02, 0x03},
		SubjectID: digest.Of([]byte("subject")),
	}
}

func TestMemStoreNotFoundThenSetThenGet(t *testing.T) {
	m := notaryregister.NewMemStore()
	key := testKey()

	_, err := m.Get(context.Background(), key)
	assert.ErrorIs(t, err, notaryregister.ErrNotFound)

	record := notaryregister.Record{LastEventHash: digest.Of([]byte("h1")), LastSn: 0}
	require.NoError(t, m.Set(context.Background(), key, record))

	got, err := m.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestSQLStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := notaryregister.NewSQLStore(db, notaryregister.DialectPostgres)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_event_hash, last_sn FROM notary_register WHERE owner = $1 AND subject_id = $2")).
		WithArgs(key.OwnerHex(), key.SubjectID.Hex()).
		WillReturnRows(sqlmock.NewRows([]string{"last_event_hash", "last_sn"}))

	_, err = store.Get(context.Background(), key)
	assert.ErrorIs(t, err, notaryregister.ErrNotFound)
}

func TestSQLStoreSetUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	store := notaryregister.NewSQLStore(db, notaryregister.DialectPostgres)
	key := testKey()
	hash := digest.Of([]byte("h1"))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notary_register")).
		WithArgs(key.OwnerHex(), key.SubjectID.Hex(), hash.Hex(), uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Set(context.Background(), key, notaryregister.Record{LastEventHash: hash, LastSn: 0})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
