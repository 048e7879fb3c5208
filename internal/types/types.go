// Package types holds the values that flow between the scanner, hasher,
// detector and file operation executor.
package types

import (
	"errors"
	"path/filepath"
	"time"
)

// ErrCancelled is returned by any pipeline stage that observed a cancellation
// request. It is a benign abort, not a failure.
var ErrCancelled = errors.New("operation cancelled")

// ScannedFile is a regular file discovered by a scan
type ScannedFile struct {
	ID         string     `json:"id"`
	Path       string     `json:"path"`
	Size       int64      `json:"size"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`

	// Empty until computed by the hasher
	PartialHash string `json:"partial_hash,omitempty"`
	FullHash    string `json:"full_hash,omitempty"`
}

// Name returns the file's base name
func (f ScannedFile) Name() string {
	return filepath.Base(f.Path)
}

// SkipReason explains why a file was left out of the results
type SkipReason string

const (
	SkipPermissionDenied SkipReason = "permission_denied"
	SkipReadError        SkipReason = "read_error"
	SkipHashingFailed    SkipReason = "hashing_failed"
)

// SkippedFile is a file that could not be processed because of an I/O error.
// Files excluded by the filter policy are not reported as skipped.
type SkippedFile struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}

// DuplicateGroup is a set of files with identical size and full hash
type DuplicateGroup struct {
	Hash  string        `json:"hash"`
	Size  int64         `json:"size"`
	Files []ScannedFile `json:"files"`
}

// FileCount returns the number of members
func (g DuplicateGroup) FileCount() int {
	return len(g.Files)
}

// PotentialSavings is the number of bytes reclaimed by keeping one member
func (g DuplicateGroup) PotentialSavings() int64 {
	if len(g.Files) < 2 {
		return 0
	}
	return g.Size * int64(len(g.Files)-1)
}

// TotalSize is the combined size of all members
func (g DuplicateGroup) TotalSize() int64 {
	return g.Size * int64(len(g.Files))
}

// Without returns a copy of the group minus the given paths. The boolean
// reports whether the remainder is still a duplicate group.
func (g DuplicateGroup) Without(paths []string) (DuplicateGroup, bool) {
	removed := make(map[string]bool, len(paths))
	for _, p := range paths {
		removed[p] = true
	}

	out := DuplicateGroup{Hash: g.Hash, Size: g.Size}
	for _, f := range g.Files {
		if !removed[f.Path] {
			out.Files = append(out.Files, f)
		}
	}
	return out, len(out.Files) >= 2
}

// ScanPhase is the pipeline stage a progress event belongs to
type ScanPhase string

const (
	PhaseIdle                   ScanPhase = "idle"
	PhaseEnumerating            ScanPhase = "enumerating"
	PhaseGroupingBySize         ScanPhase = "grouping_by_size"
	PhaseComputingPartialHashes ScanPhase = "computing_partial_hashes"
	PhaseComputingFullHashes    ScanPhase = "computing_full_hashes"
	PhaseFindingDuplicates      ScanPhase = "finding_duplicates"
	PhaseCompleted              ScanPhase = "completed"
	PhaseCancelled              ScanPhase = "cancelled"
	PhaseFailed                 ScanPhase = "failed"
)

// IsActive reports whether the phase is part of a running pipeline
func (p ScanPhase) IsActive() bool {
	switch p {
	case PhaseIdle, PhaseCompleted, PhaseCancelled, PhaseFailed:
		return false
	}
	return true
}

// Description returns a short human readable label
func (p ScanPhase) Description() string {
	switch p {
	case PhaseIdle:
		return "Ready"
	case PhaseEnumerating:
		return "Discovering files"
	case PhaseGroupingBySize:
		return "Grouping by size"
	case PhaseComputingPartialHashes:
		return "Quick content check"
	case PhaseComputingFullHashes:
		return "Verifying duplicates"
	case PhaseFindingDuplicates:
		return "Finding duplicates"
	case PhaseCompleted:
		return "Complete"
	case PhaseCancelled:
		return "Cancelled"
	case PhaseFailed:
		return "Failed"
	}
	return string(p)
}

// ScanProgress is a single progress signal. It is never persisted by the core.
type ScanProgress struct {
	Phase          ScanPhase `json:"phase"`
	TotalFiles     int64     `json:"total_files"`
	ProcessedFiles int64     `json:"processed_files"`
	CurrentPath    string    `json:"current_path,omitempty"`
	TotalBytes     int64     `json:"total_bytes"`
	ProcessedBytes int64     `json:"processed_bytes"`
	StartedAt      time.Time `json:"started_at"`
	SkippedCount   int64     `json:"skipped_count,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// FileFraction returns processed/total files in [0, 1]
func (p ScanProgress) FileFraction() float64 {
	return fraction(p.ProcessedFiles, p.TotalFiles)
}

// ByteFraction returns processed/total bytes in [0, 1]
func (p ScanProgress) ByteFraction() float64 {
	return fraction(p.ProcessedBytes, p.TotalBytes)
}

// Elapsed returns the time since the scan started
func (p ScanProgress) Elapsed(now time.Time) time.Duration {
	if p.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(p.StartedAt)
}

func fraction(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

// FailureReason classifies a file that could not be trashed
type FailureReason string

const (
	FailureNotFound         FailureReason = "not_found"
	FailurePermissionDenied FailureReason = "permission_denied"
	FailureUnknown          FailureReason = "unknown"
)

// FailedFile is one file a trash operation could not move
type FailedFile struct {
	Path   string        `json:"path"`
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// TrashResult summarizes a single trash invocation
type TrashResult struct {
	TrashedCount int          `json:"trashed_count"`
	BytesFreed   int64        `json:"bytes_freed"`
	FailedFiles  []FailedFile `json:"failed_files,omitempty"`
	TrashedPaths []string     `json:"trashed_paths,omitempty"`
}

// CompleteSuccess reports that at least one file was trashed and none failed
func (r TrashResult) CompleteSuccess() bool {
	return r.TrashedCount > 0 && len(r.FailedFiles) == 0
}

// PartialSuccess reports that some files were trashed and some failed
func (r TrashResult) PartialSuccess() bool {
	return r.TrashedCount > 0 && len(r.FailedFiles) > 0
}

// CompleteFailure reports that nothing was trashed and something failed
func (r TrashResult) CompleteFailure() bool {
	return r.TrashedCount == 0 && len(r.FailedFiles) > 0
}

// Empty reports that the invocation had nothing to do
func (r TrashResult) Empty() bool {
	return r.TrashedCount == 0 && len(r.FailedFiles) == 0
}

// ScanResult is the outcome of scan + detect over a set of roots
type ScanResult struct {
	Roots             []string         `json:"roots"`
	Groups            []DuplicateGroup `json:"groups"`
	Skipped           []SkippedFile    `json:"skipped,omitempty"`
	TotalFilesScanned int64            `json:"total_files_scanned"`
	TotalBytesScanned int64            `json:"total_bytes_scanned"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       time.Time        `json:"completed_at"`
}

// TotalPotentialSavings sums potential savings over all groups
func (r ScanResult) TotalPotentialSavings() int64 {
	var total int64
	for _, g := range r.Groups {
		total += g.PotentialSavings()
	}
	return total
}

// DuplicateFileCount counts the redundant copies across all groups
func (r ScanResult) DuplicateFileCount() int {
	var n int
	for _, g := range r.Groups {
		n += g.FileCount() - 1
	}
	return n
}

// Duration returns how long the scan took
func (r ScanResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
