package worktree

import (
	"path"
	"strings"
)

// Filter decides which paths the sync must leave alone: explicit excluded
// prefixes and .gitdepsignore patterns.
type Filter struct {
	prefixes []string
	ignore   *IgnoreChecker
}

// NewFilter builds a filter from excluded path prefixes and an optional
// ignore checker.
func NewFilter(prefixes []string, ignore *IgnoreChecker) *Filter {
	f := &Filter{ignore: ignore}
	for _, p := range prefixes {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		f.prefixes = append(f.prefixes, p)
	}
	return f
}

// Excluded reports whether name is outside the sync's reach. A prefix
// matches whole path segments only.
func (f *Filter) Excluded(name string) bool {
	if f == nil {
		return false
	}
	name = path.Clean(strings.ReplaceAll(name, "\\", "/"))
	for _, p := range f.prefixes {
		if name == p || strings.HasPrefix(name, p+"/") {
			return true
		}
	}
	return f.ignore.IsIgnored(name)
}
