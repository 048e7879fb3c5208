package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ScanRun queries

const scanRunColumns = `id, scheduled_job_id, paths, filter_options, status, started_at, completed_at,
	files_scanned, bytes_scanned, duplicate_groups, duplicate_files, wasted_bytes, skipped_count, error_message`

// CreateScanRun creates a new running scan run
func (db *DB) CreateScanRun(jobID *int64, paths []string, opts ScanOptions) (*ScanRun, error) {
	if paths == nil {
		paths = []string{}
	}
	result, err := db.Exec(`
		INSERT INTO scan_runs (scheduled_job_id, paths, filter_options, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, marshal(paths), marshal(opts), ScanRunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	return scanScanRun(db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id))
}

// ListScanRuns returns scan runs, newest first
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`SELECT `+scanRunColumns+`
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// CountScanRuns returns the number of stored scan runs
func (db *DB) CountScanRuns() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM scan_runs").Scan(&n)
	return n, err
}

// GetLastRunForJob returns the most recent scan run for a scheduled job
func (db *DB) GetLastRunForJob(jobID int64) (*ScanRun, error) {
	return scanScanRun(db.QueryRow(`SELECT `+scanRunColumns+`
		FROM scan_runs WHERE scheduled_job_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, jobID))
}

// UpdateScanRunProgress updates the counters of a scan run
func (db *DB) UpdateScanRunProgress(id int64, filesScanned, bytesScanned, groups, files, wasted int64) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET
			files_scanned = ?, bytes_scanned = ?, duplicate_groups = ?,
			duplicate_files = ?, wasted_bytes = ?
		WHERE id = ?`,
		filesScanned, bytesScanned, groups, files, wasted, id,
	)
	return err
}

// CompleteScanRun sets the final status of a scan run
func (db *DB) CompleteScanRun(id int64, status ScanRunStatus, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		status, time.Now().UTC(), errorMsg, id,
	)
	return err
}

// RecomputeScanRunTotals refreshes the duplicate counters of a run from its
// pending groups
func (db *DB) RecomputeScanRunTotals(id int64) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET
			duplicate_groups = (SELECT COUNT(*) FROM duplicate_groups WHERE scan_run_id = ?1 AND status = 'pending'),
			duplicate_files = (SELECT COALESCE(SUM(file_count - 1), 0) FROM duplicate_groups WHERE scan_run_id = ?1 AND status = 'pending'),
			wasted_bytes = (SELECT COALESCE(SUM(wasted_bytes), 0) FROM duplicate_groups WHERE scan_run_id = ?1 AND status = 'pending')
		WHERE id = ?1`, id)
	return err
}

// FailStaleScanRuns marks runs left running by a previous process as failed
func (db *DB) FailStaleScanRuns() (int64, error) {
	result, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = 'interrupted by restart'
		WHERE status = ?`,
		ScanRunStatusFailed, time.Now().UTC(), ScanRunStatusRunning)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var jobID sql.NullInt64
	var pathsJSON, optsJSON string
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &jobID, &pathsJSON, &optsJSON, &r.Status, &r.StartedAt, &completedAt,
		&r.FilesScanned, &r.BytesScanned, &r.DuplicateGroups, &r.DuplicateFiles,
		&r.WastedBytes, &r.SkippedCount, &errorMsg)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pathsJSON), &r.Paths)
	json.Unmarshal([]byte(optsJSON), &r.Options)
	if jobID.Valid {
		r.ScheduledJobID = &jobID.Int64
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// DuplicateGroup queries

const groupColumns = `id, scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files`

// CreateDuplicateGroup stores a duplicate group and sets its ID
func (db *DB) CreateDuplicateGroup(g *DuplicateGroup) (*DuplicateGroup, error) {
	result, err := db.Exec(`
		INSERT INTO duplicate_groups (scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ScanRunID, g.FileHash, g.FileSize, g.FileCount, g.WastedBytes, g.Status, marshal(g.Files),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	g.ID = id
	return g, nil
}

// CreateDuplicateGroups stores the groups of a run in one transaction
func (db *DB) CreateDuplicateGroups(scanRunID int64, groups []types.DuplicateGroup) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO duplicate_groups (scan_run_id, file_hash, file_size, file_count, wasted_bytes, status, files)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range groups {
		stored := NewDuplicateGroup(scanRunID, g)
		if _, err := stmt.Exec(stored.ScanRunID, stored.FileHash, stored.FileSize, stored.FileCount,
			stored.WastedBytes, stored.Status, marshal(stored.Files)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetDuplicateGroup retrieves a duplicate group by ID
func (db *DB) GetDuplicateGroup(id int64) (*DuplicateGroup, error) {
	return scanDuplicateGroup(db.QueryRow(`SELECT `+groupColumns+` FROM duplicate_groups WHERE id = ?`, id))
}

// DuplicateGroupQuery holds query parameters for listing duplicate groups
type DuplicateGroupQuery struct {
	ScanRunID int64
	Status    string // filter by status (empty = all)
	SortBy    string // "wasted", "size", "count", "hash"
	SortOrder string // "asc" or "desc"
	Limit     int
	Offset    int
}

// ListDuplicateGroups returns every group of a run, largest savings first
func (db *DB) ListDuplicateGroups(scanRunID int64, status string) ([]*DuplicateGroup, error) {
	return db.ListDuplicateGroupsPaginated(DuplicateGroupQuery{
		ScanRunID: scanRunID,
		Status:    status,
		SortBy:    "wasted",
		SortOrder: "desc",
	})
}

// ListDuplicateGroupsPaginated returns duplicate groups with sorting and pagination
func (db *DB) ListDuplicateGroupsPaginated(q DuplicateGroupQuery) ([]*DuplicateGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM duplicate_groups WHERE scan_run_id = ?`
	args := []any{q.ScanRunID}

	if q.Status != "" {
		query += " AND status = ?"
		args = append(args, q.Status)
	}

	sortCol := "wasted_bytes"
	switch q.SortBy {
	case "size":
		sortCol = "file_size"
	case "count":
		sortCol = "file_count"
	case "hash":
		sortCol = "file_hash"
	case "status":
		sortCol = "status"
	}

	sortOrder := "DESC"
	if q.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	// id keeps insertion (detector) order among equal keys
	query += " ORDER BY " + sortCol + " " + sortOrder + ", id ASC"

	if q.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*DuplicateGroup
	for rows.Next() {
		g, err := scanDuplicateGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CountDuplicateGroups returns the number of groups of a run
func (db *DB) CountDuplicateGroups(scanRunID int64, status string) (int, error) {
	query := "SELECT COUNT(*) FROM duplicate_groups WHERE scan_run_id = ?"
	args := []any{scanRunID}

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	var count int
	err := db.QueryRow(query, args...).Scan(&count)
	return count, err
}

// UpdateDuplicateGroupFiles replaces the members of a group after some were
// trashed. Groups left with fewer than two members become processed.
func (db *DB) UpdateDuplicateGroupFiles(id int64, files []types.ScannedFile) error {
	g, err := db.GetDuplicateGroup(id)
	if err != nil {
		return err
	}

	status := g.Status
	wasted := int64(0)
	if len(files) >= 2 {
		wasted = g.FileSize * int64(len(files)-1)
	} else {
		status = DuplicateGroupStatusProcessed
	}

	_, err = db.Exec(`
		UPDATE duplicate_groups SET files = ?, file_count = ?, wasted_bytes = ?, status = ?
		WHERE id = ?`,
		marshal(files), len(files), wasted, status, id,
	)
	return err
}

// UpdateDuplicateGroupStatus updates the status of duplicate groups
func (db *DB) UpdateDuplicateGroupStatus(ids []int64, status DuplicateGroupStatus) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, status)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := db.Exec("UPDATE duplicate_groups SET status = ? WHERE id IN ("+placeholders(len(ids))+")", args...)
	return err
}

func scanDuplicateGroup(row rowScanner) (*DuplicateGroup, error) {
	var g DuplicateGroup
	var filesJSON string

	err := row.Scan(&g.ID, &g.ScanRunID, &g.FileHash, &g.FileSize, &g.FileCount,
		&g.WastedBytes, &g.Status, &filesJSON)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(filesJSON), &g.Files)
	return &g, nil
}

// SkippedFile queries

// CreateSkippedFiles stores the skipped entries of a run and updates its
// skipped count
func (db *DB) CreateSkippedFiles(scanRunID int64, skipped []types.SkippedFile) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO skipped_files (scan_run_id, path, reason, detail) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range skipped {
		if _, err := stmt.Exec(scanRunID, s.Path, s.Reason, s.Detail); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		UPDATE scan_runs SET skipped_count = (SELECT COUNT(*) FROM skipped_files WHERE scan_run_id = ?1)
		WHERE id = ?1`, scanRunID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListSkippedFiles returns the skipped entries of a run in path order
func (db *DB) ListSkippedFiles(scanRunID int64, limit, offset int) ([]*SkippedFile, error) {
	query := `SELECT id, scan_run_id, path, reason, detail FROM skipped_files WHERE scan_run_id = ? ORDER BY path`
	args := []any{scanRunID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SkippedFile
	for rows.Next() {
		var s SkippedFile
		var detail sql.NullString
		if err := rows.Scan(&s.ID, &s.ScanRunID, &s.Path, &s.Reason, &detail); err != nil {
			return nil, err
		}
		s.Detail = detail.String
		out = append(out, &s)
	}
	return out, rows.Err()
}
