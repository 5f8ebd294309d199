// Package store exports analysis results to SQLite so they can be queried
// after the process that produced them has exited.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for trellis's export tables.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  kind            TEXT NOT NULL,
  hash            TEXT,
  last_analyzed   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS features (
  id              INTEGER PRIMARY KEY,
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  ordinal         INTEGER NOT NULL,
  feature_key     TEXT NOT NULL,
  name            TEXT NOT NULL,
  kinds           TEXT NOT NULL,
  privacy         TEXT,
  description     TEXT,
  tag_name        TEXT,
  super_class     TEXT,
  mixins          TEXT,
  import_url      TEXT,
  return_type     TEXT,
  signature_hash  TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS feature_identifiers (
  feature_id      INTEGER NOT NULL REFERENCES features(id),
  identifier      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS members (
  id              INTEGER PRIMARY KEY,
  feature_id      INTEGER NOT NULL REFERENCES features(id),
  name            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  privacy         TEXT,
  is_static       BOOLEAN DEFAULT FALSE,
  inherited_from  TEXT,
  type_expr       TEXT,
  description     TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS params (
  id              INTEGER PRIMARY KEY,
  feature_id      INTEGER NOT NULL REFERENCES features(id),
  member_id       INTEGER REFERENCES members(id),
  ordinal         INTEGER NOT NULL,
  name            TEXT,
  type_expr       TEXT,
  description     TEXT
);

CREATE TABLE IF NOT EXISTS warnings (
  id              INTEGER PRIMARY KEY,
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  feature_id      INTEGER REFERENCES features(id),
  code            TEXT NOT NULL,
  severity        INTEGER NOT NULL,
  message         TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS dependencies (
  document_id     INTEGER NOT NULL REFERENCES documents(id),
  target_path     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_features_document ON features(document_id);
CREATE INDEX IF NOT EXISTS idx_features_name ON features(name);
CREATE INDEX IF NOT EXISTS idx_features_key ON features(feature_key);
CREATE INDEX IF NOT EXISTS idx_feature_identifiers_identifier ON feature_identifiers(identifier);
CREATE INDEX IF NOT EXISTS idx_feature_identifiers_feature ON feature_identifiers(feature_id);
CREATE INDEX IF NOT EXISTS idx_members_feature ON members(feature_id);
CREATE INDEX IF NOT EXISTS idx_params_feature ON params(feature_id);
CREATE INDEX IF NOT EXISTS idx_params_member ON params(member_id);
CREATE INDEX IF NOT EXISTS idx_warnings_document ON warnings(document_id);
CREATE INDEX IF NOT EXISTS idx_warnings_severity ON warnings(severity);
CREATE INDEX IF NOT EXISTS idx_dependencies_document ON dependencies(document_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_path);
`

// execer is the subset of *sql.DB and *sql.Tx used by the row writers.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// deleteDocumentData removes every row owned by a document except the
// document row itself. Deletes run in reverse-dependency order to respect
// FK constraints.
func deleteDocumentData(tx execer, documentID int64) error {
	for _, q := range []string{
		"DELETE FROM params WHERE feature_id IN (SELECT id FROM features WHERE document_id = ?)",
		"DELETE FROM members WHERE feature_id IN (SELECT id FROM features WHERE document_id = ?)",
		"DELETE FROM feature_identifiers WHERE feature_id IN (SELECT id FROM features WHERE document_id = ?)",
		"DELETE FROM warnings WHERE document_id = ?",
		"DELETE FROM dependencies WHERE document_id = ?",
		"DELETE FROM features WHERE document_id = ?",
	} {
		if _, err := tx.Exec(q, documentID); err != nil {
			return fmt.Errorf("delete document data: %w", err)
		}
	}
	return nil
}

// DeleteDocument transactionally removes a document and everything it owns.
// Deleting an unknown path is not an error.
func (s *Store) DeleteDocument(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow("SELECT id FROM documents WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	if err := deleteDocumentData(tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}
