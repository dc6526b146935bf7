package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// BaseHookInput contains fields common to all hooks
type BaseHookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	Cwd            string `json:"cwd,omitempty"`
	HookEventName  string `json:"hook_event_name"`
}

// HookContext holds one host event read from a one-shot invocation.
type HookContext struct {
	Input     BaseHookInput
	RawInput  []byte
	StartTime time.Time
}

// NewHookContext reads and parses a single host event from r.
func NewHookContext(r io.Reader) (*HookContext, error) {
	inputData, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read hook input: %w", err)
	}

	var baseInput BaseHookInput
	if err := json.Unmarshal(inputData, &baseInput); err != nil {
		return nil, fmt.Errorf("failed to parse hook input: %w", err)
	}

	return &HookContext{
		Input:     baseInput,
		RawInput:  inputData,
		StartTime: time.Now(),
	}, nil
}

// Decode unmarshals the raw event into a specific input type.
func (hc *HookContext) Decode(v any) error {
	if err := json.Unmarshal(hc.RawInput, v); err != nil {
		return fmt.Errorf("failed to parse %s input: %w", hc.Input.HookEventName, err)
	}
	return nil
}

// ProjectDir resolves the project the event belongs to: CLAUDE_PROJECT_DIR,
// then the event's cwd, then the process working directory.
func (hc *HookContext) ProjectDir() string {
	return ResolveProjectDir(hc.Input.Cwd)
}

// ResolveProjectDir applies the project directory precedence to cwd.
func ResolveProjectDir(cwd string) string {
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return dir
	}
	if cwd != "" {
		return cwd
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
