package db

import (
	"fmt"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001},
		{2, migration002},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

const migration001 = `
CREATE TABLE scheduled_jobs (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    paths TEXT NOT NULL DEFAULT '[]',
    filter_options TEXT NOT NULL DEFAULT '{}',
    cron_expression TEXT NOT NULL,
    action TEXT NOT NULL DEFAULT 'scan',
    enabled BOOLEAN DEFAULT 1,
    last_run_at DATETIME,
    next_run_at DATETIME,
    created_at DATETIME NOT NULL
);

CREATE TABLE scan_runs (
    id INTEGER PRIMARY KEY,
    scheduled_job_id INTEGER REFERENCES scheduled_jobs(id) ON DELETE SET NULL,
    paths TEXT NOT NULL DEFAULT '[]',
    filter_options TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'running',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    files_scanned INTEGER DEFAULT 0,
    bytes_scanned INTEGER DEFAULT 0,
    duplicate_groups INTEGER DEFAULT 0,
    duplicate_files INTEGER DEFAULT 0,
    wasted_bytes INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0,
    error_message TEXT
);

CREATE INDEX idx_scan_runs_status ON scan_runs(status);
CREATE INDEX idx_scan_runs_started_at ON scan_runs(started_at);

CREATE TABLE duplicate_groups (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
    file_hash TEXT NOT NULL,
    file_size INTEGER NOT NULL,
    file_count INTEGER NOT NULL,
    wasted_bytes INTEGER NOT NULL,
    status TEXT DEFAULT 'pending',
    files TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_duplicate_groups_scan_run_id ON duplicate_groups(scan_run_id);
CREATE INDEX idx_duplicate_groups_status ON duplicate_groups(status);

CREATE TABLE skipped_files (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
    path TEXT NOT NULL,
    reason TEXT NOT NULL,
    detail TEXT
);

CREATE INDEX idx_skipped_files_scan_run_id ON skipped_files(scan_run_id);

CREATE TABLE settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

INSERT INTO settings (key, value) VALUES ('retention_days', '30');
`

const migration002 = `
-- Cleanup history outlives the scan run it came from
CREATE TABLE cleanup_sessions (
    id INTEGER PRIMARY KEY,
    scan_run_id INTEGER REFERENCES scan_runs(id) ON DELETE SET NULL,
    roots TEXT NOT NULL DEFAULT '[]',
    trashed_count INTEGER NOT NULL DEFAULT 0,
    bytes_freed INTEGER NOT NULL DEFAULT 0,
    failed_count INTEGER NOT NULL DEFAULT 0,
    permanent BOOLEAN DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX idx_cleanup_sessions_created_at ON cleanup_sessions(created_at);
`
