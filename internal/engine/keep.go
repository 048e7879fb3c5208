package engine

import (
	"fmt"
	"time"

	"github.com/lyallcooper/reclaim/internal/types"
)

// KeepStrategy picks the member of a duplicate group that survives a cleanup
type KeepStrategy string

const (
	KeepFirst  KeepStrategy = "first"  // first member in detection order
	KeepOldest KeepStrategy = "oldest" // earliest modification time
	KeepNewest KeepStrategy = "newest" // latest modification time
)

// ParseKeepStrategy validates a strategy name. Empty selects KeepFirst.
func ParseKeepStrategy(s string) (KeepStrategy, error) {
	switch k := KeepStrategy(s); k {
	case "":
		return KeepFirst, nil
	case KeepFirst, KeepOldest, KeepNewest:
		return k, nil
	}
	return "", fmt.Errorf("unknown keep strategy %q (want first, oldest or newest)", s)
}

// Choose returns the file to keep. Files without a modification time never
// win over files that have one; ties go to the earlier member.
func (k KeepStrategy) Choose(group types.DuplicateGroup) types.ScannedFile {
	if len(group.Files) == 0 {
		return types.ScannedFile{}
	}

	best := group.Files[0]
	if k != KeepOldest && k != KeepNewest {
		return best
	}
	for _, f := range group.Files[1:] {
		if better(k, f.ModifiedAt, best.ModifiedAt) {
			best = f
		}
	}
	return best
}

func better(k KeepStrategy, candidate, current *time.Time) bool {
	switch {
	case candidate == nil:
		return false
	case current == nil:
		return true
	case k == KeepOldest:
		return candidate.Before(*current)
	}
	return candidate.After(*current)
}
