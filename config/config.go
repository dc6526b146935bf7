package config

import "time"

// Config defines the structure of the bridge configuration file (bridge.yaml).
type Config struct {
	// Provider tags event log records and selects the event log root.
	Provider string `yaml:"provider" mapstructure:"provider"`

	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`

	// DefaultTimeout applies to hooks that do not declare their own timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout"`

	// MaxConcurrency caps concurrently running hooks per batch. Zero means unlimited.
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`

	// NoFilesPolicy decides what happens to a hook whose command needs a file
	// list when none was supplied: "skip" or "run".
	NoFilesPolicy string `yaml:"no_files_policy" mapstructure:"no_files_policy"`

	EventLog EventLogConfig `yaml:"event_log" mapstructure:"event_log"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Watch    WatchConfig    `yaml:"watch" mapstructure:"watch"`
}

// EventLogConfig controls the per-session han event log.
type EventLogConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Root overrides the provider default (~/.claude for claude).
	Root     string        `yaml:"root" mapstructure:"root"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// MaxOutput is the number of bytes of hook output kept in a hook_result record.
	MaxOutput int `yaml:"max_output" mapstructure:"max_output"`
}

// HistoryConfig controls the SQLite hook execution history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DBPath  string `yaml:"db_path" mapstructure:"db_path"`
}

// WatchConfig controls filesystem watching in serve mode.
type WatchConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`
}
