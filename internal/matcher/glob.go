package matcher

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchGlob reports whether path matches pattern. "**" spans directories,
// "*" stays within one segment and "{a,b}" is alternation. An invalid
// pattern never matches.
func MatchGlob(pattern, path string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || path == "" {
		return false
	}
	ok, err := doublestar.Match(filepath.ToSlash(pattern), filepath.ToSlash(path))
	if err != nil {
		return false
	}
	return ok
}

// MatchAny reports whether any pattern matches any of the candidate paths.
func MatchAny(patterns []string, candidates ...string) bool {
	for _, p := range patterns {
		for _, c := range candidates {
			if MatchGlob(p, c) {
				return true
			}
		}
	}
	return false
}
