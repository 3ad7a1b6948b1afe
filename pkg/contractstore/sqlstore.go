package contractstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taple-mesh/node/pkg/digest"
)

// Dialect selects the SQL placeholder and upsert syntax for SQLStore. Both
// dialects speak the same schema; only the query strings differ.
type Dialect int

const (
	// DialectPostgres targets lib/pq-backed Postgres.
	DialectPostgres Dialect = iota
	// DialectSQLite targets modernc.org/sqlite.
	DialectSQLite
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS contract_cache (
	governance_id TEXT NOT NULL,
	schema_id TEXT NOT NULL,
	artifact BLOB NOT NULL,
	source_hash TEXT NOT NULL,
	governance_version BIGINT NOT NULL,
	engine_tag TEXT NOT NULL,
	PRIMARY KEY (governance_id, schema_id)
);
`

// SQLStore is a database/sql-backed Store, usable against Postgres
// (lib/pq) or SQLite (modernc.org/sqlite) depending on Dialect.
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
	_, err := s.db.ExecContext(ctx, sqlSchema)
	if err != nil {
		return fmt.Errorf("contractstore: init schema: %w", err)
	}
	return nil
}

func (s *SQLStore) upsertQuery() string {
	switch s.dialect {
	case DialectSQLite:
		return `
			INSERT INTO contract_cache (governance_id, schema_id, artifact, source_hash, governance_version, engine_tag)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (governance_id, schema_id) DO UPDATE SET
				artifact = excluded.artifact,
				source_hash = excluded.source_hash,
				governance_version = excluded.governance_version,
				engine_tag = excluded.engine_tag
		`
	default:
		return `
			INSERT INTO contract_cache (governance_id, schema_id, artifact, source_hash, governance_version, engine_tag)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (governance_id, schema_id) DO UPDATE SET
				artifact = $3, source_hash = $4, governance_version = $5, engine_tag = $6
		`
	}
}

func (s *SQLStore) selectQuery() string {
	if s.dialect == DialectSQLite {
		return `SELECT artifact, source_hash, governance_version, engine_tag FROM contract_cache WHERE governance_id = ? AND schema_id = ?`
	}
	return `SELECT artifact, source_hash, governance_version, engine_tag FROM contract_cache WHERE governance_id = $1 AND schema_id = $2`
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key Key) (Entry, error) {
	row := s.db.QueryRowContext(ctx, s.selectQuery(), key.GovernanceID.Hex(), key.SchemaID)

	var artifact []byte
	var sourceHashHex string
	var version uint64
	var engineTag string
	if err := row.Scan(&artifact, &sourceHashHex, &version, &engineTag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("contractstore: get: %w", err)
	}

	sourceHash, err := digest.Parse(sourceHashHex)
	if err != nil {
		return Entry{}, fmt.Errorf("contractstore: corrupt source_hash for %s/%s: %w", key.GovernanceID.Hex(), key.SchemaID, err)
	}

	return Entry{
		Artifact:          artifact,
		SourceHash:        sourceHash,
		GovernanceVersion: version,
		EngineTag:         engineTag,
	}, nil
}

// Put implements Store. It upserts atomically: a concurrent Get never
// observes a torn write because the row is replaced in a single statement.
func (s *SQLStore) Put(ctx context.Context, key Key, entry Entry) error {
	_, err := s.db.ExecContext(ctx, s.upsertQuery(),
		key.GovernanceID.Hex(), key.SchemaID,
		entry.Artifact, entry.SourceHash.Hex(), entry.GovernanceVersion, entry.EngineTag,
	)
	if err != nil {
		return fmt.Errorf("contractstore: put: %w", err)
	}
	return nil
}

// GetGovernance implements Store.
func (s *SQLStore) GetGovernance(ctx context.Context) (Entry, error) {
	return s.Get(ctx, GovernanceKey())
}

// PutGovernance implements Store.
func (s *SQLStore) PutGovernance(ctx context.Context, entry Entry) error {
	return s.Put(ctx, GovernanceKey(), entry)
}
