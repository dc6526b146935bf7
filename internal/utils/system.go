package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ to home directory, respecting XDG_DATA_HOME for .han paths
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		expandedPath := path[2:]

		// If the path is for .han, respect XDG_DATA_HOME
		if strings.HasPrefix(expandedPath, ".han/") {
			if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
				return filepath.Join(xdgDataHome, "han", expandedPath[5:])
			}
		}

		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, expandedPath)
	}
	return path
}

// ProjectSlug converts an absolute project path into a directory name by
// replacing every character that is not a letter or digit with '-'.
func ProjectSlug(projectDir string) string {
	var b strings.Builder
	b.Grow(len(projectDir))
	for _, r := range projectDir {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
