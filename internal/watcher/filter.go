package watcher

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter decides which vault paths take part in syncing. Paths are
// slash-separated and relative to the vault root.
type Filter struct {
	Ignore  []string
	Include []string
}

// Skip reports whether relPath, or any directory above it, is ignored, or
// whether it misses every include pattern
func (f Filter) Skip(relPath string) bool {
	return f.ignored(relPath) || !f.included(relPath)
}

// SkipDir reports whether a directory should not be walked or watched.
// Include patterns only apply to files.
func (f Filter) SkipDir(relPath string) bool {
	if relPath == "." || relPath == "" {
		return false
	}
	return f.ignored(relPath)
}

func (f Filter) ignored(relPath string) bool {
	parts := strings.Split(relPath, "/")
	for _, pattern := range f.Ignore {
		for i := 1; i <= len(parts); i++ {
			if ok, err := doublestar.Match(pattern, strings.Join(parts[:i], "/")); err == nil && ok {
				return true
			}
		}
	}
	return false
}

func (f Filter) included(relPath string) bool {
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// IsDocument reports whether relPath is a markdown document rather than an
// attachment
func IsDocument(relPath string) bool {
	return strings.HasSuffix(strings.ToLower(relPath), ".md")
}
