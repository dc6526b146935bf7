// Package discovery composes enabled-plugin settings and hook manifests into
// the set of active hook definitions. It does filesystem I/O, so callers run
// it once per bridge session and keep the result.
package discovery

import (
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/manifest"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/settings"
)

var log = logging.NewLogger("han-bridge.discovery")

// Discoverer holds the settings reader used to find enabled plugins.
type Discoverer struct {
	Settings *settings.Reader
}

// New returns a Discoverer that reads the host's default settings locations.
func New() *Discoverer {
	return &Discoverer{Settings: settings.NewReader()}
}

// DiscoverHooks returns every hook declared by the enabled plugins of
// projectDir. Plugins that cannot be resolved or parsed contribute nothing.
func (d *Discoverer) DiscoverHooks(projectDir string) []models.HookDefinition {
	plugins := d.Settings.EnabledPlugins(projectDir)
	if len(plugins) == 0 {
		log.WithField("project", projectDir).Debug("No enabled plugins")
		return nil
	}

	resolver := settings.NewResolver(projectDir)

	var hooks []models.HookDefinition
	for _, name := range plugins {
		root, ok := resolver.Resolve(name)
		if !ok {
			log.WithFields(logrus.Fields{
				"plugin":      name,
				"marketplace": resolver.ManifestPath(),
			}).Debug("Plugin not found in marketplace")
			continue
		}
		pluginHooks := manifest.Load(name, root)
		log.WithFields(logrus.Fields{
			"plugin": name,
			"root":   root,
			"hooks":  len(pluginHooks),
		}).Debug("Loaded plugin hooks")
		hooks = append(hooks, pluginHooks...)
	}
	return hooks
}

// DiscoverHooks uses the default settings locations.
func DiscoverHooks(projectDir string) []models.HookDefinition {
	return New().DiscoverHooks(projectDir)
}

// GetHooksByEvent returns the hooks that fire on event.
func GetHooksByEvent(hooks []models.HookDefinition, event string) []models.HookDefinition {
	var out []models.HookDefinition
	for _, h := range hooks {
		if h.HasEvent(event) {
			out = append(out, h)
		}
	}
	return out
}
