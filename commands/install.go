package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// hostHookEntry is one matcher group in the host's settings "hooks" map.
type hostHookEntry struct {
	Matcher string        `json:"matcher"`
	Hooks   []hostHookCmd `json:"hooks"`
}

type hostHookCmd struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

func NewInstallCmd() *cobra.Command {
	var (
		targetDir string
		binary    string
		timeout   int
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register han-bridge with the agent host of a project",
		Long: `Register han-bridge in .claude/settings.local.json so the host calls it on
PreToolUse, PostToolUse, Stop and SubagentStop.

Existing settings and hooks from other tools are kept. Earlier han-bridge
entries are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := runInstall(targetDir, binary, timeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed han-bridge hooks in %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetDir, "directory", "d", ".", "Project directory to install into")
	cmd.Flags().StringVar(&binary, "binary", "han-bridge", "Command the host should invoke")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Host-side timeout in seconds for each invocation (0 keeps the host default)")

	return cmd
}

// bridgeHookEntries returns the host hook registrations for binary.
func bridgeHookEntries(binary string, timeout int) map[string]hostHookEntry {
	entry := func(matcher, sub string) hostHookEntry {
		return hostHookEntry{
			Matcher: matcher,
			Hooks:   []hostHookCmd{{Type: "command", Command: binary + " " + sub, Timeout: timeout}},
		}
	}
	return map[string]hostHookEntry{
		"PreToolUse":   entry(".*", "pretooluse"),
		"PostToolUse":  entry("Edit|Write|MultiEdit|NotebookEdit", "posttooluse"),
		"Stop":         entry(".*", "stop"),
		"SubagentStop": entry(".*", "stop"),
	}
}

func runInstall(targetDir, binary string, timeout int) (string, error) {
	absDir, err := filepath.Abs(targetDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory: %w", err)
	}
	if _, err := os.Stat(absDir); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("target directory does not exist: %s", absDir)
	}

	claudeDir := filepath.Join(absDir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create .claude directory: %w", err)
	}
	settingsPath := filepath.Join(claudeDir, "settings.local.json")

	settings := make(map[string]json.RawMessage)
	if data, err := os.ReadFile(settingsPath); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &settings); err != nil {
			backupPath := settingsPath + ".backup"
			log.WithError(err).WithField("backup_path", backupPath).Warn("Failed to parse existing settings, backing up")
			if err := os.WriteFile(backupPath, data, 0o644); err != nil {
				return "", fmt.Errorf("failed to backup corrupted settings: %w", err)
			}
			settings = make(map[string]json.RawMessage)
		}
	}

	hooksByEvent := make(map[string][]hostHookEntry)
	if raw, ok := settings["hooks"]; ok {
		if err := json.Unmarshal(raw, &hooksByEvent); err != nil {
			return "", fmt.Errorf("failed to parse existing hooks in %s: %w", settingsPath, err)
		}
	}

	for event, entry := range bridgeHookEntries(binary, timeout) {
		var kept []hostHookEntry
		for _, e := range hooksByEvent[event] {
			if !invokesBinary(e, binary) {
				kept = append(kept, e)
			}
		}
		hooksByEvent[event] = append(kept, entry)
	}

	rawHooks, err := json.Marshal(hooksByEvent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal hooks: %w", err)
	}
	settings["hooks"] = rawHooks

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write settings: %w", err)
	}

	log.WithFields(logrus.Fields{
		"settings_path": settingsPath,
		"binary":        binary,
	}).Debug("Installed host hooks")
	return settingsPath, nil
}

func invokesBinary(e hostHookEntry, binary string) bool {
	for _, h := range e.Hooks {
		if h.Command == binary || strings.HasPrefix(h.Command, binary+" ") {
			return true
		}
	}
	return false
}
