// Package engine wires the scanner, hasher, detector and file operations into
// one facade.
package engine

import (
	"context"
	"sync"

	"github.com/lyallcooper/reclaim/internal/detector"
	"github.com/lyallcooper/reclaim/internal/fileops"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/hasher"
	"github.com/lyallcooper/reclaim/internal/scanner"
	"github.com/lyallcooper/reclaim/internal/types"
)

// ScanOutput is what a scan hands to detection
type ScanOutput struct {
	Files   []types.ScannedFile
	Skipped []types.SkippedFile
}

// Options configures an Engine
type Options struct {
	// MaxConcurrent bounds the files hashed at once (default 4)
	MaxConcurrent int

	// Trasher overrides the platform trash
	Trasher fileops.Trasher
}

type canceller interface {
	Cancel()
}

// Engine runs scans and detections. Each call gets its own scanner or
// detector, so concurrent runs do not share cancellation state.
type Engine struct {
	maxConcurrent int
	files         *fileops.Executor

	mu     sync.Mutex
	active map[canceller]struct{}
}

// New creates an engine
func New(opts Options) *Engine {
	return &Engine{
		maxConcurrent: opts.MaxConcurrent,
		files:         fileops.New(opts.Trasher),
		active:        make(map[canceller]struct{}),
	}
}

func (e *Engine) track(c canceller) func() {
	e.mu.Lock()
	e.active[c] = struct{}{}
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.active, c)
		e.mu.Unlock()
	}
}

// Cancel stops every scan and detection in flight
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for c := range e.active {
		c.Cancel()
	}
}

func (e *Engine) Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*ScanOutput, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := scanner.New(policy)
	defer e.track(s)()

	files, skipped, err := s.ScanRoots(ctx, roots, progress)
	if err != nil {
		return nil, err
	}
	return &ScanOutput{Files: files, Skipped: skipped}, nil
}

func (e *Engine) Detect(ctx context.Context, files []types.ScannedFile, progress chan<- types.ScanProgress) (*detector.Result, error) {
	d := detector.New(hasher.New(e.maxConcurrent))
	defer e.track(d)()

	return d.Detect(ctx, files, progress)
}

func (e *Engine) Trash(files []types.ScannedFile) (types.TrashResult, error) {
	return e.files.TrashMany(files)
}

func (e *Engine) Remove(files []types.ScannedFile) (types.TrashResult, error) {
	return e.files.RemoveMany(files)
}

func (e *Engine) DeleteDuplicates(group types.DuplicateGroup, keep types.ScannedFile) (types.TrashResult, error) {
	return e.files.DeleteDuplicates(group, keep)
}

func (e *Engine) Reveal(path string) error {
	return e.files.Reveal(path)
}

func (e *Engine) Open(path string) error {
	return e.files.Open(path)
}
