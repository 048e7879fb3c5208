package handlers

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/types"
)

// View models for JSON responses.
// These are separate from db models to keep the wire format stable.

// ScanRunView is a scan run on the wire
type ScanRunView struct {
	ID              int64          `json:"id"`
	JobID           *int64         `json:"job_id,omitempty"`
	Paths           []string       `json:"paths"`
	Options         db.ScanOptions `json:"options"`
	Status          string         `json:"status"`
	Active          bool           `json:"active"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	FilesScanned    int64          `json:"files_scanned"`
	BytesScanned    int64          `json:"bytes_scanned"`
	DuplicateGroups int64          `json:"duplicate_groups"`
	DuplicateFiles  int64          `json:"duplicate_files"`
	WastedBytes     int64          `json:"wasted_bytes"`
	WastedHuman     string         `json:"wasted_human"`
	SkippedCount    int64          `json:"skipped_count"`
	Error           string         `json:"error,omitempty"`
}

func toScanRunView(run *db.ScanRun, active bool) ScanRunView {
	v := ScanRunView{
		ID:              run.ID,
		JobID:           run.ScheduledJobID,
		Paths:           run.Paths,
		Options:         run.Options,
		Status:          string(run.Status),
		Active:          active,
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		DurationSeconds: run.Duration().Seconds(),
		FilesScanned:    run.FilesScanned,
		BytesScanned:    run.BytesScanned,
		DuplicateGroups: run.DuplicateGroups,
		DuplicateFiles:  run.DuplicateFiles,
		WastedBytes:     run.WastedBytes,
		WastedHuman:     humanize.Bytes(uint64(max(run.WastedBytes, 0))),
		SkippedCount:    run.SkippedCount,
	}
	if run.ErrorMessage != nil {
		v.Error = *run.ErrorMessage
	}
	return v
}

// GroupView is a stored duplicate group on the wire
type GroupView struct {
	ID          int64               `json:"id"`
	Hash        string              `json:"hash"`
	Size        int64               `json:"size"`
	FileCount   int                 `json:"file_count"`
	WastedBytes int64               `json:"wasted_bytes"`
	Status      string              `json:"status"`
	Files       []types.ScannedFile `json:"files"`
}

func toGroupView(g *db.DuplicateGroup) GroupView {
	return GroupView{
		ID:          g.ID,
		Hash:        g.FileHash,
		Size:        g.FileSize,
		FileCount:   g.FileCount,
		WastedBytes: g.WastedBytes,
		Status:      string(g.Status),
		Files:       g.Files,
	}
}

// SessionView is a cleanup session on the wire
type SessionView struct {
	ID           int64     `json:"id"`
	ScanRunID    *int64    `json:"scan_run_id,omitempty"`
	Roots        []string  `json:"roots"`
	TrashedCount int       `json:"trashed_count"`
	BytesFreed   int64     `json:"bytes_freed"`
	FailedCount  int       `json:"failed_count"`
	Permanent    bool      `json:"permanent"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSessionView(s *db.CleanupSession) SessionView {
	return SessionView{
		ID:           s.ID,
		ScanRunID:    s.ScanRunID,
		Roots:        s.Roots,
		TrashedCount: s.TrashedCount,
		BytesFreed:   s.BytesFreed,
		FailedCount:  s.FailedCount,
		Permanent:    s.Permanent,
		CreatedAt:    s.CreatedAt,
	}
}

// JobView is a scheduled job on the wire
type JobView struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Paths          []string       `json:"paths"`
	Options        db.ScanOptions `json:"options"`
	CronExpression string         `json:"cron"`
	Action         string         `json:"action"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// toJobView converts a ScheduledJob to a JobView
func toJobView(job *db.ScheduledJob) JobView {
	return JobView{
		ID:             job.ID,
		Name:           job.Name,
		Paths:          job.Paths,
		Options:        job.Options,
		CronExpression: job.CronExpression,
		Action:         string(job.Action),
		Enabled:        job.Enabled,
		LastRunAt:      job.LastRunAt,
		NextRunAt:      job.NextRunAt,
		CreatedAt:      job.CreatedAt,
	}
}

// StatsView is the savings summary
type StatsView struct {
	BytesFreed      int64  `json:"bytes_freed"`
	BytesFreedHuman string `json:"bytes_freed_human"`
	FilesTrashed    int64  `json:"files_trashed"`
	Sessions        int64  `json:"sessions"`
	PendingGroups   int64  `json:"pending_groups"`
	RecentScans     int64  `json:"recent_scans"`
}

// TrashResponse reports a trash or dedupe invocation
type TrashResponse struct {
	types.TrashResult
	BytesFreedHuman string `json:"bytes_freed_human"`
	Error           string `json:"error,omitempty"`
}

func toTrashResponse(result types.TrashResult, err error) TrashResponse {
	resp := TrashResponse{
		TrashResult:     result,
		BytesFreedHuman: humanize.Bytes(uint64(max(result.BytesFreed, 0))),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// page wraps a list response with its pagination
type page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
