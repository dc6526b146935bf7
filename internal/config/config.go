package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mattsolo1/han-bridge/config"
	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/utils"
)

// Policies for hooks that need files when none were supplied.
const (
	NoFilesSkip = "skip"
	NoFilesRun  = "run"
)

// DefaultPath is where the bridge looks for its configuration file.
const DefaultPath = "~/.config/han/bridge.yaml"

var log = logging.NewLogger("han-bridge.config")

func defaultConfig() *config.Config {
	return &config.Config{
		Provider:       "claude",
		LogLevel:       "info",
		LogFormat:      "text",
		DefaultTimeout: 120 * time.Second,
		MaxConcurrency: 0,
		NoFilesPolicy:  NoFilesSkip,
		EventLog: config.EventLogConfig{
			Enabled:   true,
			Debounce:  100 * time.Millisecond,
			MaxOutput: 10000,
		},
		History: config.HistoryConfig{
			Enabled: false,
			DBPath:  "~/.han/bridge/history.db",
		},
		Watch: config.WatchConfig{
			Enabled: false,
			Ignore:  []string{".git", "node_modules", "vendor", "dist", "build"},
		},
	}
}

// Load reads the configuration from HAN_BRIDGE_CONFIG or the default path.
// It never fails: problems are logged and defaults are used.
func Load() *config.Config {
	path := os.Getenv("HAN_BRIDGE_CONFIG")
	if path == "" {
		path = DefaultPath
	}
	cfg, err := LoadFrom(path)
	if err != nil {
		log.WithError(err).Warn("Using default configuration")
		return defaultConfig()
	}
	return cfg
}

// LoadFrom reads the configuration at path, layered over defaults and
// HAN_BRIDGE_* environment variables. A missing file is not an error.
func LoadFrom(path string) (*config.Config, error) {
	v := viper.New()
	setDefaults(v, defaultConfig())

	v.SetEnvPrefix("HAN_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded := utils.ExpandPath(path)
		if _, err := os.Stat(expanded); err == nil {
			v.SetConfigFile(expanded)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", expanded, err)
		}
	}

	cfg := &config.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	cfg.History.DBPath = utils.ExpandPath(cfg.History.DBPath)
	cfg.EventLog.Root = utils.ExpandPath(cfg.EventLog.Root)
	return cfg, nil
}

// Validate checks values that viper cannot type-check.
func Validate(cfg *config.Config) error {
	switch cfg.NoFilesPolicy {
	case NoFilesSkip, NoFilesRun:
	default:
		return fmt.Errorf("invalid no_files_policy %q (want %q or %q)", cfg.NoFilesPolicy, NoFilesSkip, NoFilesRun)
	}
	if cfg.DefaultTimeout <= 0 {
		return fmt.Errorf("default_timeout must be positive, got %v", cfg.DefaultTimeout)
	}
	if cfg.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must not be negative, got %d", cfg.MaxConcurrency)
	}
	if cfg.Provider == "" {
		return errors.New("provider must not be empty")
	}
	return nil
}

func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("provider", d.Provider)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("default_timeout", d.DefaultTimeout)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("no_files_policy", d.NoFilesPolicy)
	v.SetDefault("event_log.enabled", d.EventLog.Enabled)
	v.SetDefault("event_log.root", d.EventLog.Root)
	v.SetDefault("event_log.debounce", d.EventLog.Debounce)
	v.SetDefault("event_log.max_output", d.EventLog.MaxOutput)
	v.SetDefault("history.enabled", d.History.Enabled)
	v.SetDefault("history.db_path", d.History.DBPath)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
}
