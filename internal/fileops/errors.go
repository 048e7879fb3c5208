package fileops

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/lyallcooper/reclaim/internal/types"
)

var (
	ErrFileNotFound     = errors.New("file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeletionFailed   = errors.New("deletion failed")
	ErrTrashFailed      = errors.New("could not move to trash")
	ErrKeepNotInGroup   = errors.New("file to keep is not a member of the group")
)

// Error describes a failed operation on one path. Err is one of the package
// sentinels; Detail carries the underlying system error text.
type Error struct {
	Op     string
	Path   string
	Err    error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %s", e.Op, e.Path, e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PartialFailureError is returned by batch operations when some files were
// processed and others failed. Successful work is never rolled back.
type PartialFailureError struct {
	TrashedCount int
	BytesFreed   int64
	Errors       []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d file(s) trashed, %d failed: %v", e.TrashedCount, len(e.Errors), errors.Join(e.Errors...))
}

func (e *PartialFailureError) Unwrap() []error {
	return e.Errors
}

// classify maps a system error onto the package sentinels. fallback is used
// when the error is neither a missing file nor a permission problem.
func classify(op, path string, err, fallback error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}

	out := &Error{Op: op, Path: path, Err: fallback, Detail: err.Error()}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		out.Err = ErrFileNotFound
	case isPermission(err):
		out.Err = ErrPermissionDenied
	}
	return out
}

func failureReason(err error) types.FailureReason {
	switch {
	case errors.Is(err, ErrFileNotFound):
		return types.FailureNotFound
	case errors.Is(err, ErrPermissionDenied):
		return types.FailurePermissionDenied
	}
	return types.FailureUnknown
}
