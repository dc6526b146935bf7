package models

// EventType identifies an event log record.
type EventType string

const (
	EventTypeHookRun             EventType = "hook_run"
	EventTypeHookResult          EventType = "hook_result"
	EventTypeHookFileChange      EventType = "hook_file_change"
	EventTypeHookValidationCache EventType = "hook_validation_cache"
)

// Event is one newline-delimited record in a session's han event log.
type Event struct {
	UUID      string    `json:"uuid"`
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Provider  string    `json:"provider"`
	Cwd       string    `json:"cwd"`
	HookRunID string    `json:"hookRunId,omitempty"`
	Data      any       `json:"data"`
}

// HookRunData is the payload of a hook_run record.
type HookRunData struct {
	Plugin    string   `json:"plugin"`
	Hook      string   `json:"hook"`
	HookType  string   `json:"hook_type"`
	Directory string   `json:"directory"`
	Command   string   `json:"command"`
	Files     []string `json:"files,omitempty"`
}

// HookResultData is the payload of a hook_result record.
type HookResultData struct {
	Plugin     string `json:"plugin"`
	Hook       string `json:"hook"`
	HookType   string `json:"hook_type"`
	Directory  string `json:"directory"`
	Command    string `json:"command"`
	HookRunID  string `json:"hook_run_id"`
	ExitCode   int    `json:"exit_code"`
	Success    bool   `json:"success"`
	Skipped    bool   `json:"skipped,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FileChangeData is the payload of a hook_file_change record.
type FileChangeData struct {
	ToolName string `json:"tool_name"`
	FilePath string `json:"file_path"`
}

// ValidationCacheData is the payload of a hook_validation_cache record.
// Files maps each validated path to its content hash.
type ValidationCacheData struct {
	Plugin      string            `json:"plugin"`
	Hook        string            `json:"hook"`
	Directory   string            `json:"directory"`
	CommandHash string            `json:"command_hash"`
	Files       map[string]string `json:"files"`
}
