package settings

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// MarketplaceFile is the manifest location relative to a directory.
var MarketplaceFile = filepath.Join(".claude-plugin", "marketplace.json")

// Marketplace lists plugins and their source directories.
type Marketplace struct {
	Plugins []MarketplaceEntry `json:"plugins"`
}

// MarketplaceEntry is one plugin listing. Only string sources are resolvable;
// remote sources (objects) are ignored.
type MarketplaceEntry struct {
	Name   string          `json:"name"`
	Source json.RawMessage `json:"source"`
}

// Resolver maps plugin names to directories using one marketplace manifest.
type Resolver struct {
	manifestPath string
	sources      map[string]string
}

// FindMarketplace walks upward from startDir and returns the nearest manifest.
func FindMarketplace(startDir string) (string, bool) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, MarketplaceFile)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// NewResolver loads the marketplace nearest to projectDir. A missing or
// malformed manifest yields a Resolver that resolves nothing.
func NewResolver(projectDir string) *Resolver {
	r := &Resolver{sources: make(map[string]string)}

	path, ok := FindMarketplace(projectDir)
	if !ok {
		return r
	}
	r.manifestPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to read marketplace manifest")
		return r
	}
	var m Marketplace
	if err := json.Unmarshal(data, &m); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to parse marketplace manifest")
		return r
	}

	// The manifest lives in <root>/.claude-plugin/, sources are relative to <root>.
	baseDir := filepath.Dir(filepath.Dir(path))
	for _, entry := range m.Plugins {
		var source string
		if err := json.Unmarshal(entry.Source, &source); err != nil || source == "" || entry.Name == "" {
			continue
		}
		if !filepath.IsAbs(source) {
			source = filepath.Join(baseDir, source)
		}
		r.sources[NormalizePluginName(entry.Name)] = filepath.Clean(source)
	}
	return r
}

// ManifestPath returns the marketplace in use, or "" when none was found.
func (r *Resolver) ManifestPath() string {
	return r.manifestPath
}

// Resolve returns the plugin root for name if it is listed and exists on disk.
func (r *Resolver) Resolve(name string) (string, bool) {
	root, ok := r.sources[NormalizePluginName(name)]
	if !ok {
		return "", false
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		log.WithFields(logrus.Fields{
			"plugin": name,
			"root":   root,
		}).Debug("Marketplace source does not exist")
		return "", false
	}
	return root, true
}
