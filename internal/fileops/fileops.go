// Package fileops moves duplicate files to the trash and reports exactly which
// files left disk.
package fileops

import (
	"errors"
	"io/fs"
	"os"

	"github.com/lyallcooper/reclaim/internal/types"
)

// Executor performs trash and delete operations. Batches run sequentially so
// every failure is attributed to one file.
type Executor struct {
	trasher Trasher
}

// New creates an executor that trashes through t, or through the platform
// trash when t is nil
func New(t Trasher) *Executor {
	if t == nil {
		t = DefaultTrasher()
	}
	return &Executor{trasher: t}
}

// TrashOne moves a single file to the trash
func (e *Executor) TrashOne(path string) error {
	if err := exists("trash", path); err != nil {
		return err
	}
	if err := e.trasher.Trash(path); err != nil {
		return classify("trash", path, err, ErrTrashFailed)
	}
	return nil
}

// Remove deletes a file permanently
func (e *Executor) Remove(path string) error {
	if err := exists("delete", path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return classify("delete", path, err, ErrDeletionFailed)
	}
	return nil
}

// TrashMany trashes files in order. The result always accounts for every
// file. The error is nil when everything succeeded, a *PartialFailureError
// when only some files failed, and the file's error (or all of them joined)
// when nothing was trashed.
func (e *Executor) TrashMany(files []types.ScannedFile) (types.TrashResult, error) {
	return each(files, e.TrashOne)
}

// RemoveMany is TrashMany with permanent deletion
func (e *Executor) RemoveMany(files []types.ScannedFile) (types.TrashResult, error) {
	return each(files, e.Remove)
}

// DeleteDuplicates trashes every member of group except keep. Members are
// matched by ID, or by path when keep has no ID.
func (e *Executor) DeleteDuplicates(group types.DuplicateGroup, keep types.ScannedFile) (types.TrashResult, error) {
	rest, err := Others(group, keep)
	if err != nil {
		return types.TrashResult{}, err
	}
	return e.TrashMany(rest)
}

// Others returns the members of group other than keep
func Others(group types.DuplicateGroup, keep types.ScannedFile) ([]types.ScannedFile, error) {
	var (
		rest  []types.ScannedFile
		found bool
	)
	for _, f := range group.Files {
		if !found && sameFile(f, keep) {
			found = true
			continue
		}
		rest = append(rest, f)
	}
	if !found {
		return nil, &Error{Op: "dedupe", Path: keep.Path, Err: ErrKeepNotInGroup}
	}
	return rest, nil
}

func sameFile(a, b types.ScannedFile) bool {
	if b.ID != "" {
		return a.ID == b.ID
	}
	return a.Path == b.Path
}

func each(files []types.ScannedFile, op func(string) error) (types.TrashResult, error) {
	var (
		result types.TrashResult
		errs   []error
	)
	for _, f := range files {
		if err := op(f.Path); err != nil {
			errs = append(errs, err)
			result.FailedFiles = append(result.FailedFiles, types.FailedFile{
				Path:   f.Path,
				Reason: failureReason(err),
				Detail: err.Error(),
			})
			continue
		}
		result.TrashedCount++
		result.BytesFreed += f.Size
		result.TrashedPaths = append(result.TrashedPaths, f.Path)
	}

	switch {
	case len(errs) == 0:
		return result, nil
	case result.TrashedCount > 0:
		return result, &PartialFailureError{
			TrashedCount: result.TrashedCount,
			BytesFreed:   result.BytesFreed,
			Errors:       errs,
		}
	case len(errs) == 1:
		return result, errs[0]
	}
	return result, errors.Join(errs...)
}

func exists(op, path string) error {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Error{Op: op, Path: path, Err: ErrFileNotFound}
		}
		return classify(op, path, err, ErrTrashFailed)
	}
	return nil
}
