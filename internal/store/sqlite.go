// Package store persists gateway state in SQLite: policies, ABAC profiles,
// tenant key metadata and the audit chain.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding gateway state.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// WAL lets a CLI read the audit table while the server appends.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL,
		enabled INTEGER NOT NULL,
		body TEXT NOT NULL,
		updated_at INTEGER DEFAULT (strftime('%s', 'now'))
	);
	CREATE INDEX IF NOT EXISTS idx_policies_tenant ON policies(tenant_id);

	CREATE TABLE IF NOT EXISTS profiles (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at INTEGER DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (tenant_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS tenant_keys (
		tenant_id TEXT PRIMARY KEY,
		algorithm TEXT NOT NULL,
		key_id TEXT NOT NULL,
		key_version INTEGER NOT NULL,
		rotation_interval_ns INTEGER NOT NULL,
		last_rotation TEXT NOT NULL,
		next_rotation TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		decision TEXT NOT NULL,
		policy_id TEXT NOT NULL DEFAULT '',
		request_details TEXT,
		response_details TEXT,
		timestamp TEXT NOT NULL,
		chain_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_tenant ON audit_entries(tenant_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection. Tests use it to tamper with rows.
func (s *Store) DB() *sql.DB {
	return s.db
}
