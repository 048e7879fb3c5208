package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/reclaim/internal/types"
)

// ProgressLine renders a one-line status for p, without a trailing newline
func ProgressLine(p types.ScanProgress, now time.Time) string {
	var b strings.Builder
	b.WriteString(p.Phase.Description())

	switch p.Phase {
	case types.PhaseEnumerating:
		fmt.Fprintf(&b, ": %s files, %s", humanize.Comma(p.ProcessedFiles), humanize.Bytes(uint64(p.ProcessedBytes)))
	case types.PhaseComputingPartialHashes, types.PhaseComputingFullHashes:
		fmt.Fprintf(&b, ": %s/%s files", humanize.Comma(p.ProcessedFiles), humanize.Comma(p.TotalFiles))
		if p.TotalBytes > 0 {
			fmt.Fprintf(&b, ", %s/%s (%.0f%%)",
				humanize.Bytes(uint64(p.ProcessedBytes)), humanize.Bytes(uint64(p.TotalBytes)),
				p.ByteFraction()*100)
		}
	case types.PhaseGroupingBySize, types.PhaseFindingDuplicates:
		if p.TotalFiles > 0 {
			fmt.Fprintf(&b, ": %s files", humanize.Comma(p.TotalFiles))
		}
	}

	if p.SkippedCount > 0 {
		fmt.Fprintf(&b, ", %d skipped", p.SkippedCount)
	}
	if elapsed := p.Elapsed(now); elapsed > 0 {
		fmt.Fprintf(&b, " [%s]", elapsed.Round(time.Second))
	}
	return b.String()
}
