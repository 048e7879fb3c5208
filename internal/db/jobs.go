package db

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"
)

const jobColumns = `id, name, paths, filter_options, cron_expression, action, enabled, last_run_at, next_run_at, created_at`

// CreateScheduledJob creates a new scheduled job
func (db *DB) CreateScheduledJob(job *ScheduledJob) (*ScheduledJob, error) {
	paths := job.Paths
	if paths == nil {
		paths = []string{}
	}

	result, err := db.Exec(`
		INSERT INTO scheduled_jobs (name, paths, filter_options, cron_expression, action, enabled, next_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, marshal(paths), marshal(job.Options), job.CronExpression, job.Action, job.Enabled,
		utc(job.NextRunAt), time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScheduledJob(id)
}

// GetScheduledJob retrieves a scheduled job by ID
func (db *DB) GetScheduledJob(id int64) (*ScheduledJob, error) {
	return scanScheduledJob(db.QueryRow(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id))
}

// ListScheduledJobs returns all scheduled jobs by name
func (db *DB) ListScheduledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + ` FROM scheduled_jobs ORDER BY name, id`)
}

// GetEnabledJobs returns enabled jobs, soonest first
func (db *DB) GetEnabledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + ` FROM scheduled_jobs WHERE enabled = 1 ORDER BY next_run_at, id`)
}

func (db *DB) queryJobs(query string) ([]*ScheduledJob, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateScheduledJob updates a scheduled job
func (db *DB) UpdateScheduledJob(job *ScheduledJob) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET
			name = ?, paths = ?, filter_options = ?, cron_expression = ?, action = ?, enabled = ?, next_run_at = ?
		WHERE id = ?`,
		job.Name, marshal(job.Paths), marshal(job.Options), job.CronExpression, job.Action, job.Enabled,
		utc(job.NextRunAt), job.ID,
	)
	return err
}

// UpdateJobLastRun updates the last run time and next run time
func (db *DB) UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		lastRun.UTC(), nextRun.UTC(), id,
	)
	return err
}

// UpdateJobNextRun sets only the next run time
func (db *DB) UpdateJobNextRun(id int64, nextRun time.Time) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET next_run_at = ? WHERE id = ?", nextRun.UTC(), id)
	return err
}

// SetJobEnabled enables or disables a job
func (db *DB) SetJobEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledJob deletes a scheduled job
func (db *DB) DeleteScheduledJob(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

// utc normalizes stored times so they sort as text
func utc(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	var j ScheduledJob
	var pathsJSON, optsJSON string
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&j.ID, &j.Name, &pathsJSON, &optsJSON, &j.CronExpression, &j.Action, &j.Enabled,
		&lastRun, &nextRun, &j.CreatedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(pathsJSON), &j.Paths)
	json.Unmarshal([]byte(optsJSON), &j.Options)
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}

	return &j, nil
}

// Settings

// GetSetting returns a stored setting, or sql.ErrNoRows
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	return value, err
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetSettingInt returns an integer setting, or def when it is missing or
// malformed
func (db *DB) GetSettingInt(key string, def int) int {
	val, err := db.GetSetting(key)
	if err != nil {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
