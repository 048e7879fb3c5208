package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxNameAttempts bounds the search for a free name inside a trash directory
const maxNameAttempts = 10000

// Trasher moves a file somewhere the user can restore it from
type Trasher interface {
	Trash(path string) error
}

// FreeDesktopTrash implements the freedesktop.org trash layout used by
// Linux and BSD desktops: files/<name> plus info/<name>.trashinfo.
type FreeDesktopTrash struct {
	Dir string
	now func() time.Time
}

// NewFreeDesktopTrash returns a trash rooted at dir, or at the user's home
// trash when dir is empty
func NewFreeDesktopTrash(dir string) *FreeDesktopTrash {
	if dir == "" {
		dir = FreeDesktopDir()
	}
	return &FreeDesktopTrash{Dir: dir, now: time.Now}
}

// FreeDesktopDir returns $XDG_DATA_HOME/Trash, falling back to
// ~/.local/share/Trash
func FreeDesktopDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "Trash")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "Trash")
	}
	return filepath.Join(home, ".local", "share", "Trash")
}

func (t *FreeDesktopTrash) Trash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	filesDir := filepath.Join(t.Dir, "files")
	infoDir := filepath.Join(t.Dir, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	base := filepath.Base(abs)
	for n := 0; n < maxNameAttempts; n++ {
		name := trashName(base, n)
		infoPath := filepath.Join(infoDir, name+".trashinfo")

		// The info file reserves the name
		info, err := os.OpenFile(infoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}

		dst := filepath.Join(filesDir, name)
		if _, err := os.Lstat(dst); err == nil {
			info.Close()
			os.Remove(infoPath)
			continue
		}

		_, werr := fmt.Fprintf(info, "[Trash Info]\nPath=%s\nDeletionDate=%s\n",
			(&url.URL{Path: abs}).EscapedPath(), t.now().Format("2006-01-02T15:04:05"))
		cerr := info.Close()
		if err := errors.Join(werr, cerr); err != nil {
			os.Remove(infoPath)
			return err
		}

		if err := moveFile(abs, dst); err != nil {
			os.Remove(infoPath)
			return err
		}
		return nil
	}
	return fmt.Errorf("no free name for %s in %s", base, t.Dir)
}

// DirTrash moves files into a single flat directory, renaming on collision.
// This is the layout of the macOS ~/.Trash folder.
type DirTrash struct {
	Dir string
}

func (t *DirTrash) Trash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(t.Dir, 0o700); err != nil {
		return err
	}

	base := filepath.Base(abs)
	for n := 0; n < maxNameAttempts; n++ {
		dst := filepath.Join(t.Dir, trashName(base, n))
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		return moveFile(abs, dst)
	}
	return fmt.Errorf("no free name for %s in %s", base, t.Dir)
}

// trashName returns base for n == 0 and "stem.N.ext" otherwise
func trashName(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// dotfile such as ".profile"
		return fmt.Sprintf("%s.%d", base, n)
	}
	return fmt.Sprintf("%s.%d%s", stem, n, ext)
}

// moveFile renames src to dst, copying then removing when they are on
// different filesystems
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !isCrossDevice(err) {
		return err
	}

	info, lerr := os.Lstat(src)
	if lerr != nil {
		return lerr
	}
	if !info.Mode().IsRegular() {
		return err
	}

	if err := copyFile(src, dst, info); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	err = errors.Join(err, out.Close())
	if err == nil {
		err = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}
