// Package filter decides which directories a scan descends into and which
// files it reports.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultMinimumFileSize is the smallest file size included by Default
const DefaultMinimumFileSize = 1024

// NoiseDirectoryNames are entry names skipped when system exclusion is on
var NoiseDirectoryNames = []string{
	".Trash",
	".Spotlight-V100",
	".fseventsd",
	".DocumentRevisions-V100",
	".TemporaryItems",
	".git",
	".svn",
	"node_modules",
	".DS_Store",
}

// SystemPaths are absolute roots skipped when system exclusion is on.
// Only these exact paths and their descendants match; a Library folder in a
// home directory is not a system path.
var SystemPaths = []string{
	"/Library",
	"/System",
	"/Applications",
	"/proc",
	"/sys",
	"/dev",
}

// Policy is the set of rules applied during a scan
type Policy struct {
	MinimumFileSize          int64
	ExcludeHiddenFiles       bool
	ExcludeSystemDirectories bool
	ExcludedExtensions       []string
	ExcludedDirectoryNames   []string
}

// Default returns the policy used when the caller does not supply one
func Default() Policy {
	return Policy{
		MinimumFileSize:          DefaultMinimumFileSize,
		ExcludeHiddenFiles:       true,
		ExcludeSystemDirectories: true,
	}
}

// Validate checks the policy for values that cannot be applied
func (p Policy) Validate() error {
	if p.MinimumFileSize < 0 {
		return fmt.Errorf("minimum file size must not be negative, got %d", p.MinimumFileSize)
	}
	for _, name := range p.ExcludedDirectoryNames {
		if strings.ContainsRune(name, filepath.Separator) {
			return fmt.Errorf("excluded directory name %q must not contain a path separator", name)
		}
	}
	return nil
}

// ShouldTraverse reports whether the scanner should descend into dir
func (p Policy) ShouldTraverse(dir string) bool {
	name := filepath.Base(dir)

	if p.ExcludeHiddenFiles && isHidden(name) {
		return false
	}

	if p.ExcludeSystemDirectories {
		if contains(NoiseDirectoryNames, name) || IsSystemPath(dir) {
			return false
		}
	}

	return !contains(p.ExcludedDirectoryNames, name)
}

// ShouldInclude reports whether a regular file belongs in the scan results
func (p Policy) ShouldInclude(path string, size int64) bool {
	if size < p.MinimumFileSize {
		return false
	}

	name := filepath.Base(path)
	if p.ExcludeHiddenFiles && isHidden(name) {
		return false
	}
	if p.ExcludeSystemDirectories && contains(NoiseDirectoryNames, name) {
		return false
	}

	if ext := strings.TrimPrefix(filepath.Ext(name), "."); ext != "" {
		for _, excluded := range p.ExcludedExtensions {
			if strings.EqualFold(strings.TrimPrefix(excluded, "."), ext) {
				return false
			}
		}
	}

	return true
}

// IsSystemPath reports whether path is one of SystemPaths or lies below one
func IsSystemPath(path string) bool {
	path = filepath.Clean(path)
	for _, sys := range SystemPaths {
		if path == sys || strings.HasPrefix(path, sys+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
