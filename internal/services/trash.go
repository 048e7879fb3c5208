package services

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/db"
	"github.com/lyallcooper/reclaim/internal/engine"
	"github.com/lyallcooper/reclaim/internal/fileops"
	"github.com/lyallcooper/reclaim/internal/metrics"
	"github.com/lyallcooper/reclaim/internal/types"
)

var (
	ErrGroupNotInRun   = errors.New("duplicate group does not belong to this scan")
	ErrUnknownFile     = errors.New("file is not a member of the group")
	ErrWouldRemoveAll  = errors.New("refusing to remove every copy of a file")
	ErrNothingSelected = errors.New("no files selected")
)

// TrashRequest selects what to remove from a scan run
type TrashRequest struct {
	RunID     int64
	Permanent bool
}

// TrashFiles removes the given members of one group. At least one member
// must remain. The invocation is recorded as a cleanup session and the
// stored group is pruned of the removed files. The returned result is valid
// even when err is a *fileops.PartialFailureError.
func (s *Scanner) TrashFiles(req TrashRequest, groupID int64, paths []string) (types.TrashResult, error) {
	if len(paths) == 0 {
		return types.TrashResult{}, ErrNothingSelected
	}

	s.trashMu.Lock()
	defer s.trashMu.Unlock()

	group, err := s.loadGroup(req.RunID, groupID)
	if err != nil {
		return types.TrashResult{}, err
	}

	var selected []types.ScannedFile
	for _, p := range paths {
		i := slices.IndexFunc(group.Files, func(f types.ScannedFile) bool { return f.Path == p })
		if i < 0 {
			return types.TrashResult{}, fmt.Errorf("%w: %s", ErrUnknownFile, p)
		}
		if !slices.ContainsFunc(selected, func(f types.ScannedFile) bool { return f.Path == p }) {
			selected = append(selected, group.Files[i])
		}
	}
	if len(selected) >= len(group.Files) {
		return types.TrashResult{}, ErrWouldRemoveAll
	}

	return s.removeAndRecord(req, selected, []*db.DuplicateGroup{group})
}

// TrashGroupsKeeping keeps one member of each group according to keep and
// removes the rest in a single cleanup session. An empty groupIDs selects
// every pending group of the run.
func (s *Scanner) TrashGroupsKeeping(req TrashRequest, groupIDs []int64, keep engine.KeepStrategy) (types.TrashResult, error) {
	s.trashMu.Lock()
	defer s.trashMu.Unlock()

	var groups []*db.DuplicateGroup
	if len(groupIDs) == 0 {
		all, err := s.db.ListDuplicateGroups(req.RunID, string(db.DuplicateGroupStatusPending))
		if err != nil {
			return types.TrashResult{}, err
		}
		groups = all
	} else {
		for _, id := range groupIDs {
			g, err := s.loadGroup(req.RunID, id)
			if err != nil {
				return types.TrashResult{}, err
			}
			groups = append(groups, g)
		}
	}

	var selected []types.ScannedFile
	for _, g := range groups {
		if g.Status != db.DuplicateGroupStatusPending || len(g.Files) < 2 {
			continue
		}
		others, err := fileops.Others(g.Group(), keep.Choose(g.Group()))
		if err != nil {
			return types.TrashResult{}, err
		}
		selected = append(selected, others...)
	}
	if len(selected) == 0 {
		return types.TrashResult{}, nil
	}

	return s.removeAndRecord(req, selected, groups)
}

func (s *Scanner) loadGroup(runID, groupID int64) (*db.DuplicateGroup, error) {
	group, err := s.db.GetDuplicateGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.ScanRunID != runID {
		return nil, ErrGroupNotInRun
	}
	return group, nil
}

// removeAndRecord trashes files, records the session and prunes the groups.
// Callers hold trashMu.
func (s *Scanner) removeAndRecord(req TrashRequest, files []types.ScannedFile, groups []*db.DuplicateGroup) (types.TrashResult, error) {
	run, err := s.db.GetScanRun(req.RunID)
	if err != nil {
		return types.TrashResult{}, err
	}

	var result types.TrashResult
	var opErr error
	if req.Permanent {
		result, opErr = s.engine.Remove(files)
	} else {
		result, opErr = s.engine.Trash(files)
	}

	metrics.RecordTrash(result.TrashedCount, len(result.FailedFiles), result.BytesFreed)
	s.log.Info("files removed",
		zap.Int64("run_id", req.RunID),
		zap.Bool("permanent", req.Permanent),
		zap.Int("trashed", result.TrashedCount),
		zap.Int("failed", len(result.FailedFiles)),
		zap.Int64("bytes_freed", result.BytesFreed))

	if _, err := s.db.CreateCleanupSession(&req.RunID, run.Paths, result, req.Permanent); err != nil {
		s.log.Error("failed to record cleanup session", zap.Int64("run_id", req.RunID), zap.Error(err))
	}

	if len(result.TrashedPaths) > 0 {
		for _, g := range groups {
			remaining, _ := g.Group().Without(result.TrashedPaths)
			if len(remaining.Files) == len(g.Files) {
				continue
			}
			if err := s.db.UpdateDuplicateGroupFiles(g.ID, remaining.Files); err != nil {
				s.log.Error("failed to prune duplicate group", zap.Int64("group_id", g.ID), zap.Error(err))
			}
		}
		if err := s.db.RecomputeScanRunTotals(req.RunID); err != nil {
			s.log.Error("failed to recompute run totals", zap.Int64("run_id", req.RunID), zap.Error(err))
		}
	}

	return result, opErr
}
