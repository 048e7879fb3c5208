// Package hasher computes partial and full content digests of files.
//
// Digests are XXH64 values rendered as 16 lowercase hex characters. They are
// fast, not collision resistant; equal digests are only ever compared between
// files of equal size.
package hasher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/lyallcooper/reclaim/internal/types"
)

const (
	// ChunkSize is the read buffer used for full hashes
	ChunkSize = 64 * 1024

	// SampleSize is the number of bytes read from each end for a partial hash
	SampleSize = 4096

	// SmallFileThreshold is the size at or below which the partial hash is
	// the full hash
	SmallFileThreshold = 8192

	// DefaultMaxConcurrent is the default number of files hashed at once
	DefaultMaxConcurrent = 4
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrRead         = errors.New("read error")
)

// ProgressFunc is called once per completed chunk of a batch
type ProgressFunc func(processed, total int, bytes int64)

// Stats describes the I/O done by a batch
type Stats struct {
	FilesHashed int64
	BytesRead   int64
}

// Hasher computes digests with bounded concurrency
type Hasher struct {
	maxConcurrent int
	cancelled     atomic.Bool
}

// New creates a hasher that hashes at most maxConcurrent files at once.
// Values below 1 select DefaultMaxConcurrent.
func New(maxConcurrent int) *Hasher {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Hasher{maxConcurrent: maxConcurrent}
}

// MaxConcurrent returns the batch chunk size
func (h *Hasher) MaxConcurrent() int {
	return h.maxConcurrent
}

// Cancel asks in-flight work to stop. The flag stays set until Reset.
func (h *Hasher) Cancel() {
	h.cancelled.Store(true)
}

// Reset clears a previous cancellation
func (h *Hasher) Reset() {
	h.cancelled.Store(false)
}

func (h *Hasher) isCancelled(ctx context.Context) bool {
	return h.cancelled.Load() || ctx.Err() != nil
}

// FullHash digests the whole file
func (h *Hasher) FullHash(ctx context.Context, file types.ScannedFile) (string, error) {
	sum, _, err := h.fullHash(ctx, file.Path)
	return sum, err
}

func (h *Hasher) fullHash(ctx context.Context, path string) (string, int64, error) {
	if h.isCancelled(ctx) {
		return "", 0, types.ErrCancelled
	}

	f, err := openFile(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	d := xxhash.New()
	buf := make([]byte, ChunkSize)
	var read int64

	for {
		if h.isCancelled(ctx) {
			return "", read, types.ErrCancelled
		}
		n, err := f.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
			read += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", read, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
		}
	}

	return format(d.Sum64()), read, nil
}

// PartialHash digests the first and last SampleSize bytes of a file. Files
// of SmallFileThreshold bytes or less get their full hash.
func (h *Hasher) PartialHash(ctx context.Context, file types.ScannedFile) (string, error) {
	sum, _, err := h.partialHash(ctx, file)
	return sum, err
}

func (h *Hasher) partialHash(ctx context.Context, file types.ScannedFile) (string, int64, error) {
	if file.Size <= SmallFileThreshold {
		return h.fullHash(ctx, file.Path)
	}
	if h.isCancelled(ctx) {
		return "", 0, types.ErrCancelled
	}

	f, err := openFile(file.Path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	d := xxhash.New()
	buf := make([]byte, SampleSize)

	head, err := readSample(f, buf, 0)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s: %v", ErrRead, file.Path, err)
	}
	d.Write(buf[:head])

	tail, err := readSample(f, buf, max(0, file.Size-SampleSize))
	if err != nil {
		return "", int64(head), fmt.Errorf("%w: %s: %v", ErrRead, file.Path, err)
	}
	d.Write(buf[:tail])

	return format(d.Sum64()), int64(head + tail), nil
}

// readSample fills buf from offset, tolerating a short read at end of file
func readSample(f *os.File, buf []byte, offset int64) (int, error) {
	n, err := f.ReadAt(buf, offset)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// PartialHashes computes partial hashes for files. See batch for the
// concurrency and error contract.
func (h *Hasher) PartialHashes(ctx context.Context, files []types.ScannedFile, onProgress ProgressFunc) ([]types.ScannedFile, []types.SkippedFile, Stats, error) {
	return h.batch(ctx, files, onProgress, func(f types.ScannedFile) (types.ScannedFile, int64, error) {
		sum, n, err := h.partialHash(ctx, f)
		f.PartialHash = sum
		return f, n, err
	})
}

// FullHashes computes full hashes for files. Files at or below the small
// file threshold also get their partial hash set to the same value.
func (h *Hasher) FullHashes(ctx context.Context, files []types.ScannedFile, onProgress ProgressFunc) ([]types.ScannedFile, []types.SkippedFile, Stats, error) {
	return h.batch(ctx, files, onProgress, func(f types.ScannedFile) (types.ScannedFile, int64, error) {
		sum, n, err := h.fullHash(ctx, f.Path)
		f.FullHash = sum
		if f.Size <= SmallFileThreshold {
			f.PartialHash = sum
		}
		return f, n, err
	})
}

type slot struct {
	file    types.ScannedFile
	bytes   int64
	skipped *types.SkippedFile
}

// batch hashes files in chunks of maxConcurrent. Every file of a chunk runs in
// its own goroutine and the next chunk starts only after the whole chunk has
// finished. Per-file errors become skipped entries; cancellation aborts the
// batch. Output keeps input order.
func (h *Hasher) batch(ctx context.Context, files []types.ScannedFile, onProgress ProgressFunc,
	hashOne func(types.ScannedFile) (types.ScannedFile, int64, error)) ([]types.ScannedFile, []types.SkippedFile, Stats, error) {

	var (
		out     = make([]types.ScannedFile, 0, len(files))
		skipped []types.SkippedFile
		stats   Stats
	)

	for start := 0; start < len(files); start += h.maxConcurrent {
		if h.isCancelled(ctx) {
			return nil, nil, stats, types.ErrCancelled
		}

		chunk := files[start:min(start+h.maxConcurrent, len(files))]
		slots := make([]slot, len(chunk))

		var g errgroup.Group
		for i, f := range chunk {
			g.Go(func() error {
				hashed, n, err := hashOne(f)
				slots[i].bytes = n
				if err != nil {
					if errors.Is(err, types.ErrCancelled) {
						return err
					}
					slots[i].skipped = &types.SkippedFile{
						Path:   f.Path,
						Reason: types.SkipHashingFailed,
						Detail: err.Error(),
					}
					return nil
				}
				slots[i].file = hashed
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, stats, err
		}

		for _, s := range slots {
			stats.BytesRead += s.bytes
			if s.skipped != nil {
				skipped = append(skipped, *s.skipped)
				continue
			}
			out = append(out, s.file)
			stats.FilesHashed++
		}

		if onProgress != nil {
			onProgress(start+len(chunk), len(files), stats.BytesRead)
		}
	}

	return out, skipped, stats, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrRead, path, err)
	}
	return f, nil
}

func format(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
