package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/reclaim/internal/types"
)

// TextWriter prints a human readable report
type TextWriter struct {
	w   io.Writer
	err error
}

func (t *TextWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format, args...)
}

func (t *TextWriter) Write(r *Report) error {
	t.printf("Scanned %s files (%s) in %s\n",
		humanize.Comma(r.TotalFilesScanned),
		humanize.Bytes(uint64(r.TotalBytesScanned)),
		r.Duration().Round(time.Millisecond))

	if len(r.Groups) == 0 {
		t.printf("No duplicates found\n")
	} else {
		t.printf("Found %d duplicate %s: %s redundant %s, %s reclaimable\n",
			len(r.Groups), plural(len(r.Groups), "group", "groups"),
			humanize.Comma(int64(r.DuplicateFileCount())), plural(r.DuplicateFileCount(), "copy", "copies"),
			humanize.Bytes(uint64(r.TotalPotentialSavings())))

		for i, g := range r.Groups {
			t.printf("\n[%d] %d × %s  %s  (%s reclaimable)\n",
				i+1, g.FileCount(), humanize.Bytes(uint64(g.Size)), g.Hash,
				humanize.Bytes(uint64(g.PotentialSavings())))
			for _, f := range g.Files {
				t.printf("    %s\n", f.Path)
			}
		}
	}

	if len(r.Skipped) > 0 {
		t.printf("\nSkipped %d %s:\n", len(r.Skipped), plural(len(r.Skipped), "entry", "entries"))
		for _, s := range r.Skipped {
			if s.Detail != "" {
				t.printf("    %s (%s: %s)\n", s.Path, s.Reason, s.Detail)
			} else {
				t.printf("    %s (%s)\n", s.Path, s.Reason)
			}
		}
	}

	verb := "trash"
	if r.Permanent {
		verb = "delete"
	}

	if r.Planned != nil {
		t.printf("\nDry run: would %s %d %s (%s)\n", verb, len(r.Planned),
			plural(len(r.Planned), "file", "files"), humanize.Bytes(uint64(plannedBytes(r.Planned))))
		for _, f := range r.Planned {
			t.printf("    %s\n", f.Path)
		}
	}

	if r.Trash != nil {
		t.writeTrash(verb, *r.Trash)
	}

	return t.err
}

func (t *TextWriter) writeTrash(verb string, res types.TrashResult) {
	past := map[string]string{"trash": "Trashed", "delete": "Deleted"}[verb]
	t.printf("\n%s %d %s, freed %s\n", past, res.TrashedCount,
		plural(res.TrashedCount, "file", "files"), humanize.Bytes(uint64(res.BytesFreed)))
	if len(res.FailedFiles) > 0 {
		t.printf("Failed to %s %d %s:\n", verb, len(res.FailedFiles), plural(len(res.FailedFiles), "file", "files"))
		for _, f := range res.FailedFiles {
			t.printf("    %s (%s)\n", f.Path, f.Reason)
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
