package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/storysync/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file created under the base directory.
const FileName = "storysync.db"

// Init initializes the SQLite database at baseDir/storysync.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.storysync.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: local story store
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS stories (
		  id          TEXT PRIMARY KEY,
		  title       TEXT NOT NULL,
		  description TEXT NOT NULL DEFAULT '',
		  lat         REAL NOT NULL DEFAULT 0,
		  lon         REAL NOT NULL DEFAULT 0,
		  photo       BLOB,
		  photo_name  TEXT,
		  photo_type  TEXT,
		  photo_url   TEXT,
		  created_at  INTEGER NOT NULL,
		  pending     INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_stories_created_at
		ON stories(created_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: cache partitions
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS cache_partitions (
		  name       TEXT PRIMARY KEY,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cache_entries (
		  partition    TEXT NOT NULL,
		  key          TEXT NOT NULL,
		  url          TEXT NOT NULL,
		  status       INTEGER NOT NULL,
		  headers_json TEXT,
		  body         BLOB,
		  stored_at    INTEGER NOT NULL,
		  PRIMARY KEY (partition, key)
		);

		CREATE INDEX IF NOT EXISTS idx_cache_entries_partition_stored
		ON cache_entries(partition, stored_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// CheckSchema verifies that migrations have been applied.
func CheckSchema(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version < CurrentSchemaVersion {
		return fmt.Errorf("schema version %d is older than %d", version, CurrentSchemaVersion)
	}
	return nil
}
