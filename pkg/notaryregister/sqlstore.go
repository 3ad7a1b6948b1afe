package notaryregister

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taple-mesh/node/pkg/digest"
)

// Dialect selects SQL placeholder/upsert syntax, mirroring
// contractstore.Dialect.
type Dialect int

const (
	// DialectPostgres targets lib/pq-backed Postgres.
	DialectPostgres Dialect = iota
	// DialectSQLite targets modernc.org/sqlite.
	DialectSQLite
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS notary_register (
	owner TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	last_event_hash TEXT NOT NULL,
	last_sn BIGINT NOT NULL,
	PRIMARY KEY (owner, subject_id)
);
`

// SQLStore is a database/sql-backed Store.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an existing *sql.DB. Call Init once before first use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Init creates the backing table if it does not already exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlSchema); err != nil {
		return fmt.Errorf("notaryregister: init schema: %w", err)
	}
	return nil
}

func (s *SQLStore) selectQuery() string {
	if s.dialect == DialectSQLite {
		return `SELECT last_event_hash, last_sn FROM notary_register WHERE owner = ? AND subject_id = ?`
	}
	return `SELECT last_event_hash, last_sn FROM notary_register WHERE owner = $1 AND subject_id = $2`
}

func (s *SQLStore) upsertQuery() string {
	if s.dialect == DialectSQLite {
		return `
			INSERT INTO notary_register (owner, subject_id, last_event_hash, last_sn)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (owner, subject_id) DO UPDATE SET
				last_event_hash = excluded.last_event_hash,
				last_sn = excluded.last_sn
		`
	}
	return `
		INSERT INTO notary_register (owner, subject_id, last_event_hash, last_sn)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, subject_id) DO UPDATE SET
			last_event_hash = $3, last_sn = $4
	`
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key Key) (Record, error) {
	row := s.db.QueryRowContext(ctx, s.selectQuery(), key.OwnerHex(), key.SubjectID.Hex())

	var hashHex string
	var sn uint64
	if err := row.Scan(&hashHex, &sn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("notaryregister: get: %w", err)
	}

	hash, err := digest.Parse(hashHex)
	if err != nil {
		return Record{}, fmt.Errorf("notaryregister: corrupt last_event_hash: %w", err)
	}

	return Record{LastEventHash: hash, LastSn: sn}, nil
}

// Set implements Store. The upsert is a single atomic statement, so the
// write is durable (committed by the database) before ExecContext returns
// to the caller, satisfying the commit-before-sign ordering the Notary
// Engine depends on.
func (s *SQLStore) Set(ctx context.Context, key Key, record Record) error {
	_, err := s.db.ExecContext(ctx, s.upsertQuery(), key.OwnerHex(), key.SubjectID.Hex(), record.LastEventHash.Hex(), record.LastSn)
	if err != nil {
		return fmt.Errorf("notaryregister: set: %w", err)
	}
	return nil
}
