//go:build unix

package fileops

import (
	"errors"
	"io/fs"

	"golang.org/x/sys/unix"
)

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.EROFS)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
