package db

import (
	"time"

	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/types"
)

// ScanOptions is the stored form of a filter policy
type ScanOptions struct {
	MinSize             int64    `json:"min_size"`
	ExcludeHidden       bool     `json:"exclude_hidden"`
	ExcludeSystem       bool     `json:"exclude_system"`
	ExcludedExtensions  []string `json:"excluded_extensions,omitempty"`
	ExcludedDirectories []string `json:"excluded_directories,omitempty"`
}

// OptionsFromPolicy converts a policy for storage
func OptionsFromPolicy(p filter.Policy) ScanOptions {
	return ScanOptions{
		MinSize:             p.MinimumFileSize,
		ExcludeHidden:       p.ExcludeHiddenFiles,
		ExcludeSystem:       p.ExcludeSystemDirectories,
		ExcludedExtensions:  p.ExcludedExtensions,
		ExcludedDirectories: p.ExcludedDirectoryNames,
	}
}

// Policy converts stored options back into a filter policy
func (o ScanOptions) Policy() filter.Policy {
	return filter.Policy{
		MinimumFileSize:          o.MinSize,
		ExcludeHiddenFiles:       o.ExcludeHidden,
		ExcludeSystemDirectories: o.ExcludeSystem,
		ExcludedExtensions:       o.ExcludedExtensions,
		ExcludedDirectoryNames:   o.ExcludedDirectories,
	}
}

// JobAction is what a scheduled job does when it fires
type JobAction string

const (
	JobActionScan      JobAction = "scan"       // report only
	JobActionScanTrash JobAction = "scan_trash" // trash duplicates, keeping the oldest copy
)

// Valid reports whether a is a known action
func (a JobAction) Valid() bool {
	return a == JobActionScan || a == JobActionScanTrash
}

// ScheduledJob represents a cron job for automatic scans
type ScheduledJob struct {
	ID             int64
	Name           string
	Paths          []string
	Options        ScanOptions
	CronExpression string
	Action         JobAction
	Enabled        bool
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
}

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
	ScanRunStatusCancelled ScanRunStatus = "cancelled"
)

// ScanRun represents a single execution of scan and detect
type ScanRun struct {
	ID              int64
	ScheduledJobID  *int64
	Paths           []string
	Options         ScanOptions
	Status          ScanRunStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
	FilesScanned    int64
	BytesScanned    int64
	DuplicateGroups int64
	DuplicateFiles  int64
	WastedBytes     int64
	SkippedCount    int64
	ErrorMessage    *string
}

// Duration returns the run time, or the time so far for a running scan
func (r *ScanRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// DuplicateGroupStatus represents the status of a duplicate group
type DuplicateGroupStatus string

const (
	DuplicateGroupStatusPending   DuplicateGroupStatus = "pending"
	DuplicateGroupStatusProcessed DuplicateGroupStatus = "processed"
	DuplicateGroupStatusIgnored   DuplicateGroupStatus = "ignored"
)

// DuplicateGroup is a stored duplicate group
type DuplicateGroup struct {
	ID          int64
	ScanRunID   int64
	FileHash    string
	FileSize    int64
	FileCount   int
	WastedBytes int64 // (count-1) * size
	Status      DuplicateGroupStatus
	Files       []types.ScannedFile
}

// NewDuplicateGroup builds a pending stored group from a detected one
func NewDuplicateGroup(scanRunID int64, g types.DuplicateGroup) *DuplicateGroup {
	return &DuplicateGroup{
		ScanRunID:   scanRunID,
		FileHash:    g.Hash,
		FileSize:    g.Size,
		FileCount:   g.FileCount(),
		WastedBytes: g.PotentialSavings(),
		Status:      DuplicateGroupStatusPending,
		Files:       g.Files,
	}
}

// Group converts back to the detector's representation
func (g *DuplicateGroup) Group() types.DuplicateGroup {
	return types.DuplicateGroup{Hash: g.FileHash, Size: g.FileSize, Files: g.Files}
}

// Paths returns the member paths in stored order
func (g *DuplicateGroup) Paths() []string {
	paths := make([]string, len(g.Files))
	for i, f := range g.Files {
		paths[i] = f.Path
	}
	return paths
}

// SkippedFile is a stored skipped entry of a scan run
type SkippedFile struct {
	ID        int64
	ScanRunID int64
	types.SkippedFile
}

// CleanupSession is one recorded trash invocation
type CleanupSession struct {
	ID           int64
	ScanRunID    *int64
	Roots        []string
	TrashedCount int
	BytesFreed   int64
	FailedCount  int
	Permanent    bool
	CreatedAt    time.Time
}

// SavingsStats totals the cleanup history
type SavingsStats struct {
	BytesFreed    int64
	FilesTrashed  int64
	Sessions      int64
	PendingGroups int64
	RecentScans   int64 // scans started in the last 24 hours
}
