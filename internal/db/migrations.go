package db

import (
	"fmt"
)

// migration is one schema step, applied at most once
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, `
-- Content digests keyed by file identity
CREATE TABLE file_hashes (
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    mod_time_ns INTEGER NOT NULL,
    algorithm TEXT NOT NULL,
    digest TEXT NOT NULL,
    seen_at INTEGER NOT NULL, -- unix seconds
    PRIMARY KEY (path, algorithm)
);`},
	{2, `CREATE INDEX idx_file_hashes_seen_at ON file_hashes(seen_at);`},
}

// Migrate brings the schema up to the latest version
func (db *DB) Migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version > version {
			if err := db.apply(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a new database
func (db *DB) SchemaVersion() (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("migration %d: %w", m.version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s','now'))", m.version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	return tx.Commit()
}
