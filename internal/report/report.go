// Package report renders scan results and cleanup outcomes for the command
// line, as plain text or JSON.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// Report is everything a CLI scan produced
type Report struct {
	types.ScanResult

	// Planned lists the files a dry run would have removed
	Planned []types.ScannedFile

	// Trash is set when files were actually removed
	Trash *types.TrashResult

	// TrashErr is the error returned with Trash, if any
	TrashErr error

	Permanent bool
}

// Writer is implemented by each output format.
type Writer interface {
	Write(r *Report) error
}

// Formats lists the accepted output formats
var Formats = []string{"text", "json"}

// NewWriter returns the writer for format
func NewWriter(format string, w io.Writer) (Writer, error) {
	switch format {
	case "", "text":
		return &TextWriter{w: w}, nil
	case "json":
		return &JSONWriter{w: w}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text or json)", format)
}

// plannedBytes sums the sizes of the files a dry run would remove
func plannedBytes(files []types.ScannedFile) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}

func seconds(d time.Duration) float64 {
	return d.Round(time.Millisecond).Seconds()
}
