// Package persistence implements the SQLite-backed session.Store: one
// row per agent, its entire AgentState serialized as a JSON blob, keyed
// by agent id. Grounded on the teacher's pkg/persistence schema/migration
// pattern (WAL mode, busy-timeout, a schema_version table driving
// numbered migrations) and directly on the teacher's own "agent_states"
// table, which already exists for system-level resume.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the schema version this package knows how to
// produce and migrate to.
const CurrentSchemaVersion = 1

// InitializeDatabase opens dbPath (creating it if needed), applies
// pragmas, and brings the schema up to CurrentSchemaVersion. Idempotent:
// safe to call against an already-initialized database.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("persistence: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping database: %w", err)
	}
	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: initialize schema: %w", err)
	}
	// SQLite supports a single writer; cap the pool so database/sql never
	// hands out a second connection that would collide on WAL locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if currentVersion == 0 {
		return createSchema(db)
	}
	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("set schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies the single numbered migration for version. New
// migrations are added as additional cases as the schema evolves;
// CurrentSchemaVersion must be bumped alongside.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return createSchema(db)
	default:
		return fmt.Errorf("no migration defined for schema version %d", version)
	}
}

func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
		// Mirrors the teacher's agent_states table (agent_id PK,
		// current_state, state_data, updated_at), narrowed to this
		// module's single agent kind: state_data holds the full
		// session.AgentState JSON projection.
		`CREATE TABLE IF NOT EXISTS agent_states (
			agent_id TEXT PRIMARY KEY,
			current_state TEXT NOT NULL,
			state_data TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			updated_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return setSchemaVersion(db, CurrentSchemaVersion)
}

func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version, creating the
// tracking table (and so returning 0) if the database is fresh.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("scan schema version: %w", err)
	}
	return version, nil
}
