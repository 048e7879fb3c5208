// Package detector finds groups of identical files using a staged pipeline:
// size, then a head/tail sample hash, then a full content hash.
package detector

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lyallcooper/reclaim/internal/hasher"
	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/types"
)

// Result is the outcome of a detection run
type Result struct {
	Groups  []types.DuplicateGroup
	Skipped []types.SkippedFile
	Stats   Stats
}

// Stats records how far each stage narrowed the candidate set
type Stats struct {
	FilesConsidered int
	SizeCandidates  int
	PartialHashed   int64
	FullHashed      int64
	BytesHashed     int64
}

// Detector runs the duplicate pipeline over scanned files
type Detector struct {
	hasher    *hasher.Hasher
	cancelled atomic.Bool
}

// New creates a detector that hashes through h
func New(h *hasher.Hasher) *Detector {
	return &Detector{hasher: h}
}

// Cancel stops the current run before its next stage or hash chunk. A Cancel
// before Detect starts is honored; the flag stays set until Reset.
func (d *Detector) Cancel() {
	d.cancelled.Store(true)
	d.hasher.Cancel()
}

// Reset clears a previous cancellation so the detector can be reused
func (d *Detector) Reset() {
	d.cancelled.Store(false)
	d.hasher.Reset()
}

type sizeHash struct {
	size int64
	hash string
}

// Detect returns duplicate groups sorted by potential savings, largest first.
// Progress events are dropped when the channel is full.
func (d *Detector) Detect(ctx context.Context, files []types.ScannedFile, progress chan<- types.ScanProgress) (*Result, error) {
	r := &run{d: d, ctx: ctx, progress: progress, startedAt: time.Now()}
	result, err := r.detect(files)
	if err != nil {
		if errors.Is(err, types.ErrCancelled) {
			r.emit(types.ScanProgress{Phase: types.PhaseCancelled})
			return nil, types.ErrCancelled
		}
		r.emit(types.ScanProgress{Phase: types.PhaseFailed, Error: err.Error()})
		return nil, err
	}
	return result, nil
}

type run struct {
	d         *Detector
	ctx       context.Context
	progress  chan<- types.ScanProgress
	startedAt time.Time
	skipped   []types.SkippedFile
}

func (r *run) cancelled() bool {
	return r.d.cancelled.Load() || r.ctx.Err() != nil
}

func (r *run) emit(p types.ScanProgress) {
	if r.progress == nil {
		return
	}
	p.StartedAt = r.startedAt
	p.SkippedCount = int64(len(r.skipped))
	select {
	case r.progress <- p:
	default:
	}
}

func (r *run) complete(result *Result) *Result {
	result.Skipped = r.skipped
	r.emit(types.ScanProgress{
		Phase:          types.PhaseCompleted,
		TotalFiles:     int64(len(result.Groups)),
		ProcessedFiles: int64(len(result.Groups)),
	})
	return result
}

func (r *run) detect(files []types.ScannedFile) (*Result, error) {
	log := logging.L().With(zap.String("component", "detector"))
	result := &Result{Stats: Stats{FilesConsidered: len(files)}}

	// Stage 1: size
	if r.cancelled() {
		return nil, types.ErrCancelled
	}
	r.emit(types.ScanProgress{Phase: types.PhaseGroupingBySize, TotalFiles: int64(len(files))})

	bySize := GroupBySize(files)
	if len(bySize) == 0 {
		return r.complete(result), nil
	}

	var small, large []types.ScannedFile
	for _, size := range slices.Sorted(maps.Keys(bySize)) {
		if size <= hasher.SmallFileThreshold {
			small = append(small, bySize[size]...)
		} else {
			large = append(large, bySize[size]...)
		}
	}
	result.Stats.SizeCandidates = len(small) + len(large)
	log.Debug("size grouping done",
		zap.Int("files", len(files)),
		zap.Int("small_candidates", len(small)),
		zap.Int("large_candidates", len(large)))

	// Stage 2: head/tail sample of large files
	if r.cancelled() {
		return nil, types.ErrCancelled
	}
	var survivors []types.ScannedFile
	if len(large) > 0 {
		done := cumulativeSizes(large)
		total := done[len(large)]
		r.emit(types.ScanProgress{
			Phase:      types.PhaseComputingPartialHashes,
			TotalFiles: int64(len(large)),
			TotalBytes: total,
		})

		hashed, skipped, stats, err := r.d.hasher.PartialHashes(r.ctx, large, func(processed, n int, _ int64) {
			r.emit(types.ScanProgress{
				Phase:          types.PhaseComputingPartialHashes,
				TotalFiles:     int64(n),
				ProcessedFiles: int64(processed),
				TotalBytes:     total,
				ProcessedBytes: done[processed],
			})
		})
		if err != nil {
			return nil, err
		}
		r.skipped = append(r.skipped, skipped...)
		result.Stats.PartialHashed = stats.FilesHashed
		result.Stats.BytesHashed += stats.BytesRead

		survivors = keepCollisions(hashed, func(f types.ScannedFile) sizeHash {
			return sizeHash{f.Size, f.PartialHash}
		})
		log.Debug("partial hashing done",
			zap.Int("hashed", len(hashed)),
			zap.Int("survivors", len(survivors)))
	}

	// Stage 3: full content of survivors and small files
	if r.cancelled() {
		return nil, types.ErrCancelled
	}
	candidates := append(survivors, small...)
	if len(candidates) == 0 {
		return r.complete(result), nil
	}

	done := cumulativeSizes(candidates)
	total := done[len(candidates)]
	r.emit(types.ScanProgress{
		Phase:      types.PhaseComputingFullHashes,
		TotalFiles: int64(len(candidates)),
		TotalBytes: total,
	})

	hashed, skipped, stats, err := r.d.hasher.FullHashes(r.ctx, candidates, func(processed, n int, _ int64) {
		r.emit(types.ScanProgress{
			Phase:          types.PhaseComputingFullHashes,
			TotalFiles:     int64(n),
			ProcessedFiles: int64(processed),
			TotalBytes:     total,
			ProcessedBytes: done[processed],
		})
	})
	if err != nil {
		return nil, err
	}
	r.skipped = append(r.skipped, skipped...)
	result.Stats.FullHashed = stats.FilesHashed
	result.Stats.BytesHashed += stats.BytesRead

	// Stage 4: group by full content
	if r.cancelled() {
		return nil, types.ErrCancelled
	}
	r.emit(types.ScanProgress{Phase: types.PhaseFindingDuplicates, TotalFiles: int64(len(hashed))})

	result.Groups = BuildGroups(hashed)
	log.Debug("duplicate detection done",
		zap.Int("groups", len(result.Groups)),
		zap.Int("skipped", len(r.skipped)),
		zap.Int64("bytes_hashed", result.Stats.BytesHashed))

	return r.complete(result), nil
}

// GroupBySize partitions files by exact size and drops sizes held by a single
// file. Members keep their input order.
func GroupBySize(files []types.ScannedFile) map[int64][]types.ScannedFile {
	groups := lo.GroupBy(files, func(f types.ScannedFile) int64 { return f.Size })
	return lo.PickBy(groups, func(_ int64, members []types.ScannedFile) bool {
		return len(members) > 1
	})
}

// BuildGroups partitions fully hashed files by (size, full hash), drops
// singletons and sorts by potential savings descending. Ties are ordered by
// size then hash so repeated runs give the same order.
func BuildGroups(files []types.ScannedFile) []types.DuplicateGroup {
	partitions := lo.GroupBy(files, func(f types.ScannedFile) sizeHash {
		return sizeHash{f.Size, f.FullHash}
	})

	var groups []types.DuplicateGroup
	for key, members := range partitions {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, types.DuplicateGroup{Hash: key.hash, Size: key.size, Files: members})
	}

	slices.SortFunc(groups, func(a, b types.DuplicateGroup) int {
		return cmp.Or(
			cmp.Compare(b.PotentialSavings(), a.PotentialSavings()),
			cmp.Compare(b.Size, a.Size),
			cmp.Compare(a.Hash, b.Hash),
		)
	})
	return groups
}

// keepCollisions drops files whose key is not shared with another file.
// Survivors keep their input order.
func keepCollisions[K comparable](files []types.ScannedFile, key func(types.ScannedFile) K) []types.ScannedFile {
	counts := lo.CountValuesBy(files, key)
	return lo.Filter(files, func(f types.ScannedFile, _ int) bool {
		return counts[key(f)] > 1
	})
}

// cumulativeSizes returns prefix sums of file sizes: element i is the size of
// files[:i]
func cumulativeSizes(files []types.ScannedFile) []int64 {
	sums := make([]int64, len(files)+1)
	for i, f := range files {
		sums[i+1] = sums[i] + f.Size
	}
	return sums
}
