// Command reclaim finds duplicate files and moves the redundant copies to
// the trash. It runs one-off scans from the command line or serves a JSON
// API with scheduled scans.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lyallcooper/reclaim/internal/logging"
	"github.com/lyallcooper/reclaim/internal/types"
)

// Version info - injected at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// exitCancelled is the conventional status for a command stopped by SIGINT
const exitCancelled = 130

func main() {
	os.Exit(execute(&cli{stdout: os.Stdout, stderr: os.Stderr}, os.Args[1:]))
}

func execute(c *cli, args []string) int {
	root := c.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	_ = logging.Sync()
	return exitCode(err, c.stderr)
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, types.ErrCancelled):
		fmt.Fprintln(stderr, "Scan cancelled")
		return exitCancelled
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}
