package main

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/fileops"
	"github.com/lyallcooper/reclaim/internal/filter"
	"github.com/lyallcooper/reclaim/internal/services"
	"github.com/lyallcooper/reclaim/internal/types"
)

// backend runs a scan and removes duplicates from its result
type backend interface {
	Scan(ctx context.Context, roots []string, policy filter.Policy, onProgress func(types.ScanProgress)) (types.ScanResult, error)
	Remove(groups []types.DuplicateGroup, keep engine.KeepStrategy, permanent bool) (types.TrashResult, error)
}

// planRemoval returns every group member except the one keep chooses
func planRemoval(groups []types.DuplicateGroup, keep engine.KeepStrategy) []types.ScannedFile {
	planned := []types.ScannedFile{}
	for _, g := range groups {
		if g.FileCount() < 2 {
			continue
		}
		rest, err := fileops.Others(g, keep.Choose(g))
		if err != nil {
			continue
		}
		planned = append(planned, rest...)
	}
	return planned
}

// directBackend runs the engine in-process without touching the database
type directBackend struct {
	engine engine.Interface
}

func (b *directBackend) Scan(ctx context.Context, roots []string, policy filter.Policy, onProgress func(types.ScanProgress)) (types.ScanResult, error) {
	progress := make(chan types.ScanProgress, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range progress {
			onProgress(p)
		}
	}()
	defer func() {
		close(progress)
		<-forwarded
	}()

	started := time.Now()
	out, err := b.engine.Scan(ctx, roots, policy, progress)
	if err != nil {
		return types.ScanResult{}, err
	}
	detected, err := b.engine.Detect(ctx, out.Files, progress)
	if err != nil {
		return types.ScanResult{}, err
	}

	var bytes int64
	for _, f := range out.Files {
		bytes += f.Size
	}
	return types.ScanResult{
		Roots:             roots,
		Groups:            detected.Groups,
		Skipped:           slices.Concat(out.Skipped, detected.Skipped),
		TotalFilesScanned: int64(len(out.Files)),
		TotalBytesScanned: bytes,
		StartedAt:         started,
		CompletedAt:       time.Now(),
	}, nil
}

func (b *directBackend) Remove(groups []types.DuplicateGroup, keep engine.KeepStrategy, permanent bool) (types.TrashResult, error) {
	files := planRemoval(groups, keep)
	if permanent {
		return b.engine.Remove(files)
	}
	return b.engine.Trash(files)
}

// recordedBackend runs the scan through the scan service so the run, its
// groups and any cleanup land in the history database
type recordedBackend struct {
	db      *db.DB
	scanner *services.Scanner
	runID   int64
}

func (b *recordedBackend) Scan(ctx context.Context, roots []string, policy filter.Policy, onProgress func(types.ScanProgress)) (types.ScanResult, error) {
	run, err := b.scanner.StartScan(ctx, &services.ScanConfig{Paths: roots, Policy: policy}, nil)
	if err != nil {
		return types.ScanResult{}, err
	}
	b.runID = run.ID

	updates := b.scanner.Subscribe(run.ID)
	defer b.scanner.Unsubscribe(run.ID, updates)

	// A run that is no longer active has already closed its subscribers
	if b.scanner.IsActive(run.ID) {
		cancelled := ctx.Done()
	loop:
		for {
			select {
			case p, ok := <-updates:
				if !ok {
					break loop
				}
				onProgress(*p)
			case <-cancelled:
				b.scanner.CancelScan(run.ID)
				cancelled = nil
			}
		}
	}
	if err := b.scanner.WaitForRun(context.Background(), run.ID); err != nil {
		return types.ScanResult{}, err
	}

	return b.load(run.ID)
}

// load rebuilds a scan result from the stored run
func (b *recordedBackend) load(runID int64) (types.ScanResult, error) {
	run, err := b.db.GetScanRun(runID)
	if err != nil {
		return types.ScanResult{}, err
	}
	switch run.Status {
	case db.ScanRunStatusCancelled:
		return types.ScanResult{}, types.ErrCancelled
	case db.ScanRunStatusFailed:
		msg := "scan failed"
		if run.ErrorMessage != nil {
			msg = *run.ErrorMessage
		}
		return types.ScanResult{}, errors.New(msg)
	}

	stored, err := b.db.ListDuplicateGroups(runID, "")
	if err != nil {
		return types.ScanResult{}, err
	}
	skipped, err := b.db.ListSkippedFiles(runID, 0, 0)
	if err != nil {
		return types.ScanResult{}, err
	}

	result := types.ScanResult{
		Roots:             run.Paths,
		TotalFilesScanned: run.FilesScanned,
		TotalBytesScanned: run.BytesScanned,
		StartedAt:         run.StartedAt,
		CompletedAt:       time.Now(),
	}
	if run.CompletedAt != nil {
		result.CompletedAt = *run.CompletedAt
	}
	for _, g := range stored {
		result.Groups = append(result.Groups, g.Group())
	}
	for _, s := range skipped {
		result.Skipped = append(result.Skipped, s.SkippedFile)
	}
	return result, nil
}

func (b *recordedBackend) Remove(_ []types.DuplicateGroup, keep engine.KeepStrategy, permanent bool) (types.TrashResult, error) {
	return b.scanner.TrashGroupsKeeping(services.TrashRequest{RunID: b.runID, Permanent: permanent}, nil, keep)
}
