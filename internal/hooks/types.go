package hooks

import (
	"strings"

	"github.com/mattsolo1/han-bridge/internal/models"
)

// Host event payloads, as delivered on stdin or as serve-mode lines.

type PreToolUseInput struct {
	BaseHookInput
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
}

type PostToolUseInput struct {
	BaseHookInput
	ToolName     string         `json:"tool_name"`
	ToolInput    map[string]any `json:"tool_input"`
	ToolResponse any            `json:"tool_response"`
	ToolError    *string        `json:"tool_error"`
	ToolUseID    string         `json:"tool_use_id,omitempty"`
}

type StopInput struct {
	BaseHookInput
	StopHookActive bool `json:"stop_hook_active"`
}

// FilePath returns the path the tool operated on, if any.
func (in PreToolUseInput) FilePath() string {
	return filePathFromInput(in.ToolInput)
}

// FilePath returns the path the tool operated on, if any.
func (in PostToolUseInput) FilePath() string {
	return filePathFromInput(in.ToolInput)
}

// Succeeded reports whether the tool completed without error. A response
// object carrying "success": false counts as a failure.
func (in PostToolUseInput) Succeeded() bool {
	if in.ToolError != nil {
		return false
	}
	if resp, ok := in.ToolResponse.(map[string]any); ok {
		if success, ok := resp["success"].(bool); ok {
			return success
		}
	}
	return true
}

// Event returns the idle event name, defaulting to Stop.
func (in StopInput) Event() string {
	if strings.EqualFold(in.HookEventName, models.EventSubagentStop) {
		return models.EventSubagentStop
	}
	return models.EventStop
}

// Host responses. Nothing is printed when validation passed.

type StopResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type PreToolUseResponse struct {
	HookSpecificOutput PreToolUseOutput `json:"hookSpecificOutput"`
}

type PreToolUseOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

type PostToolUseResponse struct {
	Decision           string            `json:"decision"`
	Reason             string            `json:"reason"`
	HookSpecificOutput PostToolUseOutput `json:"hookSpecificOutput"`
}

type PostToolUseOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}
