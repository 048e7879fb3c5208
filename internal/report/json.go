package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

type jsonReport struct {
	Roots             []string               `json:"roots"`
	StartedAt         time.Time              `json:"started_at"`
	CompletedAt       time.Time              `json:"completed_at"`
	DurationSeconds   float64                `json:"duration_seconds"`
	FilesScanned      int64                  `json:"files_scanned"`
	BytesScanned      int64                  `json:"bytes_scanned"`
	DuplicateFiles    int                    `json:"duplicate_files"`
	PotentialSavings  int64                  `json:"potential_savings"`
	Groups            []types.DuplicateGroup `json:"groups"`
	Skipped           []types.SkippedFile    `json:"skipped"`
	Planned           []string               `json:"planned,omitempty"`
	Trash             *types.TrashResult     `json:"trash,omitempty"`
	TrashError        string                 `json:"trash_error,omitempty"`
	PermanentDeletion bool                   `json:"permanent,omitempty"`
}

// JSONWriter writes the report as a single indented JSON object
type JSONWriter struct {
	w io.Writer
}

func (j *JSONWriter) Write(r *Report) error {
	out := jsonReport{
		Roots:             r.Roots,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
		DurationSeconds:   seconds(r.Duration()),
		FilesScanned:      r.TotalFilesScanned,
		BytesScanned:      r.TotalBytesScanned,
		DuplicateFiles:    r.DuplicateFileCount(),
		PotentialSavings:  r.TotalPotentialSavings(),
		Groups:            r.Groups,
		Skipped:           r.Skipped,
		Trash:             r.Trash,
		PermanentDeletion: r.Permanent,
	}
	// Empty slices encode as [] so consumers need no null checks
	if out.Groups == nil {
		out.Groups = []types.DuplicateGroup{}
	}
	if out.Skipped == nil {
		out.Skipped = []types.SkippedFile{}
	}
	for _, f := range r.Planned {
		out.Planned = append(out.Planned, f.Path)
	}
	if r.TrashErr != nil {
		out.TrashError = r.TrashErr.Error()
	}

	enc := json.NewEncoder(j.w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
