package models

import (
	"strings"
	"time"
)

// Lifecycle event names emitted by the host.
const (
	EventPreToolUse   = "PreToolUse"
	EventPostToolUse  = "PostToolUse"
	EventStop         = "Stop"
	EventSubagentStop = "SubagentStop"
)

// DefaultHookEvent is used when a manifest entry does not declare an event.
const DefaultHookEvent = EventStop

// Reserved exit codes for results that never produced a real process status.
const (
	ExitCodeSpawnFailure = -1
	ExitCodeInternal     = -2
	ExitCodeTimeout      = 124
)

// HookDefinition is one declared validation command owned by a plugin.
type HookDefinition struct {
	Name       string        `json:"name"`
	PluginName string        `json:"plugin"`
	PluginRoot string        `json:"plugin_root"`
	Events     []string      `json:"events"`
	Command    string        `json:"command"`
	ToolFilter []string      `json:"tool_filter,omitempty"`
	FileFilter []string      `json:"file_filter,omitempty"`
	DirsWith   []string      `json:"dirs_with,omitempty"`
	DirTest    string        `json:"dir_test,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// ID returns the plugin-qualified hook name.
func (h HookDefinition) ID() string {
	return h.PluginName + "/" + h.Name
}

// HasEvent reports whether the hook fires on the given lifecycle event.
func (h HookDefinition) HasEvent(event string) bool {
	for _, e := range h.Events {
		if e == event {
			return true
		}
	}
	return false
}

// HookResult is the outcome of one execution attempt. It is never mutated
// after the executor returns it.
type HookResult struct {
	Hook     HookDefinition `json:"hook"`
	Files    []string       `json:"files,omitempty"`
	ExitCode int            `json:"exit_code"`
	Stdout   string         `json:"stdout,omitempty"`
	Stderr   string         `json:"stderr,omitempty"`
	Duration time.Duration  `json:"duration"`
	Skipped  bool           `json:"skipped"`
	TimedOut bool           `json:"timed_out,omitempty"`
	// RunID correlates the result with its hook_run event log record.
	RunID string `json:"run_id,omitempty"`
}

// Failed reports whether the hook actually ran and exited non-zero.
func (r HookResult) Failed() bool {
	return !r.Skipped && r.ExitCode != 0
}

// Output returns stdout when it has content, otherwise stderr.
func (r HookResult) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

// HookExecution is a persisted history row for one non-skipped hook run.
type HookExecution struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	HookRunID  string    `json:"hook_run_id,omitempty"`
	Plugin     string    `json:"plugin"`
	Hook       string    `json:"hook"`
	Event      string    `json:"event"`
	Directory  string    `json:"directory"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exit_code"`
	Passed     bool      `json:"passed"`
	DurationMs int64     `json:"duration_ms"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}
