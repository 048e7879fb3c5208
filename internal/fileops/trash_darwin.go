package fileops

import (
	"os"
	"path/filepath"
)

// DefaultTrasher returns the user's ~/.Trash folder
func DefaultTrasher() Trasher {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &DirTrash{Dir: filepath.Join(home, ".Trash")}
}
