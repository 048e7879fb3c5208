// Package scanner enumerates directory trees into file records for duplicate
// detection.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/types"
)

// ProgressInterval is the number of accepted files between progress events
const ProgressInterval = 100

var (
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrAccessDenied      = errors.New("access denied")
)

// Error is a fatal scan error for a root path
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error() + ": " + e.Path
}

func (e *Error) Unwrap() error {
	return e.Err
}

// packageExtensions are directory suffixes treated as opaque bundles
var packageExtensions = []string{
	".app", ".bundle", ".framework", ".plugin", ".kext",
	".photoslibrary", ".xcodeproj", ".xcworkspace",
}

// Scanner walks a directory tree with a single goroutine
type Scanner struct {
	policy    filter.Policy
	cancelled atomic.Bool
}

// New creates a scanner applying the given policy
func New(policy filter.Policy) *Scanner {
	return &Scanner{policy: policy}
}

// Cancel asks an in-flight scan to stop at the next entry. A Cancel before
// the scan starts is honored; the flag stays set until Reset.
func (s *Scanner) Cancel() {
	s.cancelled.Store(true)
}

// Reset clears a previous cancellation so the scanner can be reused
func (s *Scanner) Reset() {
	s.cancelled.Store(false)
}

func (s *Scanner) isCancelled(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

// Scan enumerates root. Progress events are dropped when the channel is full.
// On error no files are returned.
func (s *Scanner) Scan(ctx context.Context, root string, progress chan<- types.ScanProgress) ([]types.ScannedFile, []types.SkippedFile, error) {
	return s.scan(ctx, root, progress, time.Now(), nil)
}

// ScanRoots scans each root in order and concatenates the results. A path
// reachable from more than one root is reported once.
func (s *Scanner) ScanRoots(ctx context.Context, roots []string, progress chan<- types.ScanProgress) ([]types.ScannedFile, []types.SkippedFile, error) {
	startedAt := time.Now()
	seen := make(map[string]bool)
	var files []types.ScannedFile
	var skipped []types.SkippedFile

	for _, root := range roots {
		f, sk, err := s.scan(ctx, root, progress, startedAt, seen)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f...)
		skipped = append(skipped, sk...)
	}

	return files, skipped, nil
}

func (s *Scanner) scan(ctx context.Context, root string, progress chan<- types.ScanProgress, startedAt time.Time, seen map[string]bool) ([]types.ScannedFile, []types.SkippedFile, error) {
	if s.isCancelled(ctx) {
		return nil, nil, types.ErrCancelled
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, &Error{Path: root, Err: ErrDirectoryNotFound}
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, nil, &Error{Path: root, Err: ErrAccessDenied}
		}
		return nil, nil, &Error{Path: root, Err: ErrDirectoryNotFound}
	}
	if !info.IsDir() {
		return nil, nil, &Error{Path: root, Err: ErrDirectoryNotFound}
	}

	// WalkDir does not descend into a symlinked root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	var (
		files        []types.ScannedFile
		skipped      []types.SkippedFile
		bytesScanned int64
	)

	report := func(current string) {
		sendProgress(progress, types.ScanProgress{
			Phase:          types.PhaseEnumerating,
			ProcessedFiles: int64(len(files)),
			ProcessedBytes: bytesScanned,
			CurrentPath:    current,
			StartedAt:      startedAt,
			SkippedCount:   int64(len(skipped)),
		})
	}

	report(root)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if s.isCancelled(ctx) {
			return types.ErrCancelled
		}

		if err != nil {
			if path == root {
				return &Error{Path: root, Err: ErrAccessDenied}
			}
			skipped = append(skipped, types.SkippedFile{Path: path, Reason: types.SkipPermissionDenied})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if isPackage(d.Name()) || !s.policy.ShouldTraverse(path) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets, devices and pipes are never reported
		if !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			skipped = append(skipped, types.SkippedFile{Path: path, Reason: types.SkipPermissionDenied})
			return nil
		}

		if !s.policy.ShouldInclude(path, fi.Size()) {
			return nil
		}
		if seen != nil {
			if seen[path] {
				return nil
			}
			seen[path] = true
		}

		files = append(files, newScannedFile(path, fi))
		bytesScanned += fi.Size()

		if len(files)%ProgressInterval == 0 {
			report(path)
		}
		return nil
	})

	if walkErr != nil {
		if errors.Is(walkErr, types.ErrCancelled) {
			return nil, nil, types.ErrCancelled
		}
		var scanErr *Error
		if errors.As(walkErr, &scanErr) {
			return nil, nil, scanErr
		}
		return nil, nil, fmt.Errorf("walk %s: %w", root, walkErr)
	}

	report("")
	return files, skipped, nil
}

func newScannedFile(path string, fi fs.FileInfo) types.ScannedFile {
	modTime := fi.ModTime()
	f := types.ScannedFile{
		ID:         uuid.NewString(),
		Path:       path,
		Size:       fi.Size(),
		ModifiedAt: &modTime,
	}
	if birth, ok := birthTime(path, fi); ok {
		f.CreatedAt = &birth
	}
	return f
}

func isPackage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, p := range packageExtensions {
		if ext == p {
			return true
		}
	}
	return false
}

func sendProgress(ch chan<- types.ScanProgress, p types.ScanProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
	default:
	}
}
