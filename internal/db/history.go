package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// CreateCleanupSession records one trash invocation. Empty results are not
// recorded and return nil.
func (db *DB) CreateCleanupSession(scanRunID *int64, roots []string, result types.TrashResult, permanent bool) (*CleanupSession, error) {
	if result.Empty() {
		return nil, nil
	}
	if roots == nil {
		roots = []string{}
	}

	res, err := db.Exec(`
		INSERT INTO cleanup_sessions (scan_run_id, roots, trashed_count, bytes_freed, failed_count, permanent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		scanRunID, marshal(roots), result.TrashedCount, result.BytesFreed, len(result.FailedFiles),
		permanent, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetCleanupSession(id)
}

// GetCleanupSession retrieves a cleanup session by ID
func (db *DB) GetCleanupSession(id int64) (*CleanupSession, error) {
	return scanCleanupSession(db.QueryRow(`
		SELECT id, scan_run_id, roots, trashed_count, bytes_freed, failed_count, permanent, created_at
		FROM cleanup_sessions WHERE id = ?`, id))
}

// ListCleanupSessions returns cleanup sessions, newest first
func (db *DB) ListCleanupSessions(limit, offset int) ([]*CleanupSession, error) {
	rows, err := db.Query(`
		SELECT id, scan_run_id, roots, trashed_count, bytes_freed, failed_count, permanent, created_at
		FROM cleanup_sessions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*CleanupSession
	for rows.Next() {
		s, err := scanCleanupSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CountCleanupSessions returns the number of recorded sessions
func (db *DB) CountCleanupSessions() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM cleanup_sessions").Scan(&n)
	return n, err
}

// DeleteCleanupSession removes a session from the history. Deleting an
// unknown ID returns sql.ErrNoRows.
func (db *DB) DeleteCleanupSession(id int64) error {
	res, err := db.Exec("DELETE FROM cleanup_sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSavingsStats totals the cleanup history. Totals are never negative.
func (db *DB) GetSavingsStats() (*SavingsStats, error) {
	var s SavingsStats

	row := db.QueryRow(`
		SELECT COALESCE(SUM(bytes_freed), 0), COALESCE(SUM(trashed_count), 0), COUNT(*)
		FROM cleanup_sessions`)
	if err := row.Scan(&s.BytesFreed, &s.FilesTrashed, &s.Sessions); err != nil {
		return nil, err
	}

	row = db.QueryRow("SELECT COUNT(*) FROM duplicate_groups WHERE status = 'pending'")
	if err := row.Scan(&s.PendingGroups); err != nil {
		return nil, err
	}

	row = db.QueryRow("SELECT COUNT(*) FROM scan_runs WHERE started_at > ?", time.Now().UTC().Add(-24*time.Hour))
	if err := row.Scan(&s.RecentScans); err != nil {
		return nil, err
	}

	s.BytesFreed = max(s.BytesFreed, 0)
	s.FilesTrashed = max(s.FilesTrashed, 0)
	return &s, nil
}

// CleanupOldData removes finished scan runs older than the retention period,
// together with their groups and skipped entries. Cleanup sessions are kept.
func (db *DB) CleanupOldData(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := db.Exec("DELETE FROM scan_runs WHERE completed_at < ? AND status != ?", cutoff, ScanRunStatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanCleanupSession(row rowScanner) (*CleanupSession, error) {
	var s CleanupSession
	var scanRunID sql.NullInt64
	var rootsJSON string

	err := row.Scan(&s.ID, &scanRunID, &rootsJSON, &s.TrashedCount, &s.BytesFreed, &s.FailedCount,
		&s.Permanent, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(rootsJSON), &s.Roots)
	if scanRunID.Valid {
		s.ScanRunID = &scanRunID.Int64
	}
	return &s, nil
}
