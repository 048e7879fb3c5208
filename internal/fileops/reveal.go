package fileops

import (
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pkg/browser"
)

// Reveal shows path in the platform file manager
func (e *Executor) Reveal(path string) error {
	if err := exists("reveal", path); err != nil {
		return err
	}
	_, err := startReaped(revealCommand(runtime.GOOS, path))
	return err
}

// startReaped starts cmd and waits for it in the background so the child is
// reaped. The channel receives the exit error once. File managers often exit
// non-zero after handing off to a running instance, so Reveal ignores it.
func startReaped(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	return done, nil
}

// Open opens path with its default application
func (e *Executor) Open(path string) error {
	if err := exists("open", path); err != nil {
		return err
	}
	return browser.OpenFile(path)
}

func revealCommand(goos, path string) *exec.Cmd {
	switch goos {
	case "darwin":
		return exec.Command("open", "-R", path)
	case "windows":
		return exec.Command("explorer", "/select,", path)
	default:
		// xdg-open cannot select a file, so open its folder
		return exec.Command("xdg-open", filepath.Dir(path))
	}
}
