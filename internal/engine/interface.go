package engine

import (
	"context"

	"github.com/lyallcooper/reclaim/internal/detector"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/types"
)

// Interface is the programmatic boundary of the duplicate finder.
// This allows mocking the engine in tests.
type Interface interface {
	// Scan enumerates the roots under policy
	Scan(ctx context.Context, roots []string, policy filter.Policy, progress chan<- types.ScanProgress) (*ScanOutput, error)

	// Detect groups scanned files into duplicate sets
	Detect(ctx context.Context, files []types.ScannedFile, progress chan<- types.ScanProgress) (*detector.Result, error)

	// Trash moves the selected files to the trash
	Trash(files []types.ScannedFile) (types.TrashResult, error)

	// Remove deletes the selected files permanently
	Remove(files []types.ScannedFile) (types.TrashResult, error)

	// DeleteDuplicates trashes every member of group except keep
	DeleteDuplicates(group types.DuplicateGroup, keep types.ScannedFile) (types.TrashResult, error)

	// Reveal shows a file in the platform file manager
	Reveal(path string) error

	// Open opens a file with its default application
	Open(path string) error
}

// Ensure Engine implements Interface
var _ Interface = (*Engine)(nil)
