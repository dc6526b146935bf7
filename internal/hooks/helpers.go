package hooks

import (
	"strings"

	"github.com/google/uuid"

	"github.com/mattsolo1/han-bridge/internal/eventlog"
	"github.com/mattsolo1/han-bridge/internal/models"
)

const historyMaxOutput = 10000

// Tools that write files, across the providers the bridge serves.
var editTools = map[string]bool{
	"edit":         true,
	"write":        true,
	"multiedit":    true,
	"notebookedit": true,
	"patch":        true,
}

// IsEditTool reports whether toolName modifies files.
func IsEditTool(toolName string) bool {
	return editTools[strings.ToLower(toolName)]
}

func filePathFromInput(input map[string]any) string {
	for _, key := range []string{"file_path", "notebook_path", "path"} {
		if p, ok := input[key].(string); ok && p != "" {
			return p
		}
	}
	return ""
}

// executionRecord converts a finished result into a history row.
func executionRecord(r models.HookResult, sessionID, event, projectDir string) *models.HookExecution {
	exec := &models.HookExecution{
		ID:         r.RunID,
		SessionID:  sessionID,
		HookRunID:  r.RunID,
		Plugin:     r.Hook.PluginName,
		Hook:       r.Hook.Name,
		Event:      event,
		Directory:  projectDir,
		Command:    r.Hook.Command,
		ExitCode:   r.ExitCode,
		Passed:     r.ExitCode == 0,
		DurationMs: r.Duration.Milliseconds(),
		Output:     eventlog.TruncateOutput(r.Output(), historyMaxOutput),
	}
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if r.Stderr != "" && r.Stderr != r.Output() {
		exec.Error = eventlog.TruncateOutput(r.Stderr, historyMaxOutput)
	}
	return exec
}
