//go:build !unix

package fileops

import (
	"errors"
	"io/fs"
)

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// Renames on these platforms fail with a generic error across volumes, so no
// copy fallback is attempted.
func isCrossDevice(error) bool {
	return false
}
