// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents an applied schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

type migrationScript struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the embedded, ordered migration set. Scripts are immutable
// once released; the checksum ledger rejects edited history.
var migrations = []migrationScript{
	{
		Version:     1,
		Description: "sync core: change log, tombstones, entity tables",
		SQL:         schemaV1,
	},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS change_log (
	operation_id TEXT PRIMARY KEY,
	entity_table TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	operation_type TEXT NOT NULL CHECK(operation_type IN ('create','update','delete','hard_delete')),
	field_name TEXT,
	old_value TEXT,
	new_value TEXT,
	timestamp INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	device_id TEXT,
	sync_batch_id TEXT,
	processed_at INTEGER,
	sync_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_change_log_order ON change_log(timestamp, operation_id);
CREATE INDEX IF NOT EXISTS idx_change_log_entity ON change_log(entity_table, entity_id);
CREATE INDEX IF NOT EXISTS idx_change_log_unprocessed ON change_log(processed_at) WHERE processed_at IS NULL;

CREATE TABLE IF NOT EXISTS tombstones (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	deleted_by TEXT NOT NULL,
	deleted_by_device_id TEXT,
	deleted_at INTEGER NOT NULL,
	operation_id TEXT NOT NULL,
	pushed_at INTEGER,
	UNIQUE(entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by_user_id TEXT,
	updated_by_user_id TEXT,
	created_by_device_id TEXT,
	updated_by_device_id TEXT,
	deleted_at INTEGER,
	deleted_by_user_id TEXT
);

CREATE TABLE IF NOT EXISTS project_funding (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	project_id_updated_at INTEGER,
	project_id_updated_by TEXT,
	project_id_updated_by_device_id TEXT,
	donor_name TEXT NOT NULL DEFAULT '',
	donor_name_updated_at INTEGER,
	donor_name_updated_by TEXT,
	donor_name_updated_by_device_id TEXT,
	grant_id TEXT,
	grant_id_updated_at INTEGER,
	grant_id_updated_by TEXT,
	grant_id_updated_by_device_id TEXT,
	amount REAL NOT NULL DEFAULT 0,
	amount_updated_at INTEGER,
	amount_updated_by TEXT,
	amount_updated_by_device_id TEXT,
	currency TEXT NOT NULL DEFAULT 'USD',
	currency_updated_at INTEGER,
	currency_updated_by TEXT,
	currency_updated_by_device_id TEXT,
	start_date TEXT,
	start_date_updated_at INTEGER,
	start_date_updated_by TEXT,
	start_date_updated_by_device_id TEXT,
	end_date TEXT,
	end_date_updated_at INTEGER,
	end_date_updated_by TEXT,
	end_date_updated_by_device_id TEXT,
	status TEXT NOT NULL DEFAULT 'proposed',
	status_updated_at INTEGER,
	status_updated_by TEXT,
	status_updated_by_device_id TEXT,
	notes TEXT,
	notes_updated_at INTEGER,
	notes_updated_by TEXT,
	notes_updated_by_device_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by_user_id TEXT,
	updated_by_user_id TEXT,
	created_by_device_id TEXT,
	updated_by_device_id TEXT,
	deleted_at INTEGER,
	deleted_by_user_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_project_funding_project ON project_funding(project_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS workshops (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	project_id_updated_at INTEGER,
	project_id_updated_by TEXT,
	project_id_updated_by_device_id TEXT,
	purpose TEXT,
	purpose_updated_at INTEGER,
	purpose_updated_by TEXT,
	purpose_updated_by_device_id TEXT,
	event_date TEXT,
	event_date_updated_at INTEGER,
	event_date_updated_by TEXT,
	event_date_updated_by_device_id TEXT,
	location TEXT,
	location_updated_at INTEGER,
	location_updated_by TEXT,
	location_updated_by_device_id TEXT,
	budget REAL,
	budget_updated_at INTEGER,
	budget_updated_by TEXT,
	budget_updated_by_device_id TEXT,
	participant_count INTEGER,
	participant_count_updated_at INTEGER,
	participant_count_updated_by TEXT,
	participant_count_updated_by_device_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by_user_id TEXT,
	updated_by_user_id TEXT,
	created_by_device_id TEXT,
	updated_by_device_id TEXT,
	deleted_at INTEGER,
	deleted_by_user_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_workshops_project ON workshops(project_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	project_id TEXT,
	project_id_updated_at INTEGER,
	project_id_updated_by TEXT,
	project_id_updated_by_device_id TEXT,
	description TEXT,
	description_updated_at INTEGER,
	description_updated_by TEXT,
	description_updated_by_device_id TEXT,
	kpi TEXT,
	kpi_updated_at INTEGER,
	kpi_updated_by TEXT,
	kpi_updated_by_device_id TEXT,
	target_value REAL,
	target_value_updated_at INTEGER,
	target_value_updated_by TEXT,
	target_value_updated_by_device_id TEXT,
	actual_value REAL,
	actual_value_updated_at INTEGER,
	actual_value_updated_by TEXT,
	actual_value_updated_by_device_id TEXT,
	status TEXT NOT NULL DEFAULT 'planned',
	status_updated_at INTEGER,
	status_updated_by TEXT,
	status_updated_by_device_id TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	created_by_user_id TEXT,
	updated_by_user_id TEXT,
	created_by_device_id TEXT,
	updated_by_device_id TEXT,
	deleted_at INTEGER,
	deleted_by_user_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_activities_project ON activities(project_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS entity_documents (
	id TEXT PRIMARY KEY,
	entity_table TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	compressed_file_path TEXT,
	mime_type TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entity_documents_entity ON entity_documents(entity_table, entity_id);

CREATE TABLE IF NOT EXISTS pending_file_deletions (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	queued_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0
);
`

// Migrator applies the embedded migration set and keeps a checksum ledger.
type Migrator struct {
	db *DB
}

// NewMigrator creates a new Migrator.
func NewMigrator(db *DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations ledger if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// AppliedMigrations returns all applied migrations, oldest first.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations. Already-applied versions are verified
// against the ledger checksum and skipped.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migration ledger: %w", err)
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	appliedByVersion := make(map[int]Migration, len(applied))
	for _, mig := range applied {
		appliedByVersion[mig.Version] = mig
	}

	for _, script := range migrations {
		sum := checksum(script.SQL)

		if prev, ok := appliedByVersion[script.Version]; ok {
			if prev.Checksum != sum {
				return fmt.Errorf("migration %d checksum mismatch: ledger has %s, script is %s",
					script.Version, prev.Checksum, sum)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", script.Version, err)
		}
		if _, err := tx.Exec(script.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", script.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			script.Version, time.Now().Unix(), script.Description, sum,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", script.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", script.Version, err)
		}
	}

	return nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
