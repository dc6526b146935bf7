// Package matcher narrows hook definitions to the ones that apply to a
// lifecycle event occurrence.
package matcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mattsolo1/han-bridge/internal/models"
)

// MatchForToolEvent returns the hooks whose tool filter, directory markers and
// file patterns all admit this tool event.
func MatchForToolEvent(hooks []models.HookDefinition, toolName, filePath, projectDir string) []models.HookDefinition {
	var out []models.HookDefinition
	for _, h := range hooks {
		if !matchesTool(h, toolName) {
			continue
		}
		if !HasDirMarker(h, projectDir) {
			continue
		}
		if !MatchesFile(h, filePath, projectDir) {
			continue
		}
		out = append(out, h)
	}
	return out
}

// MatchForIdleEvent applies only the directory marker gate; there is no tool
// or file context when the agent goes idle.
func MatchForIdleEvent(hooks []models.HookDefinition, projectDir string) []models.HookDefinition {
	var out []models.HookDefinition
	for _, h := range hooks {
		if HasDirMarker(h, projectDir) {
			out = append(out, h)
		}
	}
	return out
}

func matchesTool(h models.HookDefinition, toolName string) bool {
	if len(h.ToolFilter) == 0 {
		return true
	}
	for _, t := range h.ToolFilter {
		if strings.EqualFold(t, toolName) {
			return true
		}
	}
	return false
}

// HasDirMarker reports whether the hook has no markers or at least one of
// them exists under projectDir. Markers containing glob syntax are expanded.
func HasDirMarker(h models.HookDefinition, projectDir string) bool {
	if len(h.DirsWith) == 0 {
		return true
	}
	for _, marker := range h.DirsWith {
		if strings.ContainsAny(marker, "*?[{") {
			matches, err := doublestar.Glob(os.DirFS(projectDir), filepath.ToSlash(marker))
			if err == nil && len(matches) > 0 {
				return true
			}
			continue
		}
		if _, err := os.Stat(filepath.Join(projectDir, marker)); err == nil {
			return true
		}
	}
	return false
}

// MatchesFile reports whether the hook has no file filter or one of its
// patterns matches filePath, either relative to projectDir or as given.
// Patterns without a separator also match the base name, so "*.ts" selects
// src/a.ts the way an ignore file would.
func MatchesFile(h models.HookDefinition, filePath, projectDir string) bool {
	if len(h.FileFilter) == 0 {
		return true
	}
	if filePath == "" {
		return false
	}
	candidates := []string{filePath}
	if rel, ok := RelativeTo(projectDir, filePath); ok && rel != filePath {
		candidates = append([]string{rel}, candidates...)
	}
	if MatchAny(h.FileFilter, candidates...) {
		return true
	}
	base := filepath.Base(filePath)
	for _, p := range h.FileFilter {
		if !strings.Contains(filepath.ToSlash(p), "/") && MatchGlob(p, base) {
			return true
		}
	}
	return false
}

// RelativeTo returns path relative to dir when path lies inside dir.
func RelativeTo(dir, path string) (string, bool) {
	if dir == "" || !filepath.IsAbs(path) {
		return path, !filepath.IsAbs(path)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path, false
	}
	return rel, true
}
