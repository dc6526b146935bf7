// Package settings reads the layered host settings that decide which plugins
// are enabled, and resolves plugin names to directories via the nearest
// marketplace manifest.
package settings

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/utils"
)

var log = logging.NewLogger("han-bridge.settings")

// Settings is the subset of a host settings document the bridge reads.
type Settings struct {
	Plugins        map[string]PluginSetting `json:"plugins"`
	EnabledPlugins map[string]bool          `json:"enabledPlugins"`
}

// PluginSetting accepts either {"enabled": bool} or a bare bool.
// An entry without an explicit flag counts as enabled.
type PluginSetting struct {
	Enabled *bool `json:"enabled"`
}

func (p *PluginSetting) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		v := string(data) == "true"
		p.Enabled = &v
		return nil
	}
	type plain PluginSetting
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*p = PluginSetting(out)
	return nil
}

// IsEnabled reports the effective flag.
func (p PluginSetting) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Reader merges user, project and local settings documents.
type Reader struct {
	// UserSettingsPath is the user-global settings document.
	UserSettingsPath string
}

// NewReader returns a Reader for the host's default user settings location.
func NewReader() *Reader {
	return &Reader{UserSettingsPath: DefaultUserSettingsPath()}
}

// DefaultUserSettingsPath honours CLAUDE_CONFIG_DIR before falling back to ~/.claude.
func DefaultUserSettingsPath() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "settings.json")
	}
	return utils.ExpandPath("~/.claude/settings.json")
}

// Paths returns the settings documents for projectDir in increasing precedence.
func (r *Reader) Paths(projectDir string) []string {
	return []string{
		r.UserSettingsPath,
		filepath.Join(projectDir, ".claude", "settings.json"),
		filepath.Join(projectDir, ".claude", "settings.local.json"),
	}
}

// EnabledPlugins returns the sorted, de-duplicated plugin names enabled for
// projectDir. A plugin disabled in any document is excluded.
func (r *Reader) EnabledPlugins(projectDir string) []string {
	enabled := make(map[string]bool)
	disabled := make(map[string]bool)

	for _, path := range r.Paths(projectDir) {
		s, ok := readSettings(path)
		if !ok {
			continue
		}
		for name, setting := range s.Plugins {
			mark(NormalizePluginName(name), setting.IsEnabled(), enabled, disabled)
		}
		for name, on := range s.EnabledPlugins {
			mark(NormalizePluginName(name), on, enabled, disabled)
		}
	}

	names := make([]string, 0, len(enabled))
	for name := range enabled {
		if !disabled[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func mark(name string, on bool, enabled, disabled map[string]bool) {
	if name == "" {
		return
	}
	if on {
		enabled[name] = true
	} else {
		disabled[name] = true
	}
}

// NormalizePluginName strips a scope suffix such as "@marketplace".
func NormalizePluginName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, "@"); i >= 0 {
		return name[:i]
	}
	return name
}

// readSettings treats a missing or malformed document as contributing nothing.
func readSettings(path string) (*Settings, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Debug("Skipping unreadable settings")
		}
		return nil, false
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		log.WithError(err).WithField("path", path).Warn("Skipping malformed settings")
		return nil, false
	}
	return &s, true
}
