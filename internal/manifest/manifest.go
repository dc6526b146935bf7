// Package manifest parses a plugin's han-plugin.yml hook manifest.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/models"
)

// FileNames are the manifest names looked up in a plugin root, in order.
var FileNames = []string{"han-plugin.yml", "han-plugin.yaml"}

var log = logging.NewLogger("han-bridge.manifest")

// StringList decodes either a scalar or a sequence of scalars.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
			*s = nil
			return nil
		}
		*s = StringList{strings.TrimSpace(node.Value)}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: list items must be scalars", item.Line)
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				out = append(out, v)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list", node.Line)
	}
}

type hookEntry struct {
	Event      StringList `yaml:"event"`
	Command    string     `yaml:"command"`
	ToolFilter StringList `yaml:"tool_filter"`
	FileFilter StringList `yaml:"file_filter"`
	DirsWith   StringList `yaml:"dirs_with"`
	DirTest    string     `yaml:"dir_test"`
	Timeout    int        `yaml:"timeout"`
}

type document struct {
	Hooks yaml.Node `yaml:"hooks"`
}

// Parse decodes a manifest document. Entries that fail to decode or have no
// command are dropped; only a document that is not YAML at all is an error.
func Parse(data []byte, pluginName, pluginRoot string) ([]models.HookDefinition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse hook manifest: %w", err)
	}
	if doc.Hooks.Kind == 0 {
		return nil, nil
	}
	if doc.Hooks.Kind != yaml.MappingNode {
		return nil, errors.New("hooks must be a mapping of hook name to definition")
	}

	var hooks []models.HookDefinition
	content := doc.Hooks.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := strings.TrimSpace(content[i].Value)
		fields := logrus.Fields{"plugin": pluginName, "hook": name}

		var entry hookEntry
		if err := content[i+1].Decode(&entry); err != nil {
			log.WithError(err).WithFields(fields).Warn("Dropping malformed hook entry")
			continue
		}
		if name == "" || strings.TrimSpace(entry.Command) == "" {
			log.WithFields(fields).Debug("Dropping hook without command")
			continue
		}

		events := []string(entry.Event)
		if len(events) == 0 {
			events = []string{models.DefaultHookEvent}
		}

		def := models.HookDefinition{
			Name:       name,
			PluginName: pluginName,
			PluginRoot: pluginRoot,
			Events:     events,
			Command:    strings.TrimSpace(entry.Command),
			ToolFilter: entry.ToolFilter,
			FileFilter: entry.FileFilter,
			DirsWith:   entry.DirsWith,
			DirTest:    entry.DirTest,
		}
		if entry.Timeout > 0 {
			def.Timeout = time.Duration(entry.Timeout) * time.Millisecond
		}
		hooks = append(hooks, def)
	}
	return hooks, nil
}

// Find returns the manifest path inside pluginRoot.
func Find(pluginRoot string) (string, bool) {
	for _, name := range FileNames {
		path := filepath.Join(pluginRoot, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// Load reads the plugin's manifest. Any failure yields no hooks for this
// plugin only.
func Load(pluginName, pluginRoot string) []models.HookDefinition {
	path, ok := Find(pluginRoot)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to read hook manifest")
		return nil
	}
	hooks, err := Parse(data, pluginName, pluginRoot)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Ignoring hook manifest")
		return nil
	}
	return hooks
}
