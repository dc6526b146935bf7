package executor

import (
	"os"
	"strings"

	"github.com/mattsolo1/han-bridge/internal/models"
)

// Placeholders substituted into hook commands before they run.
const (
	FilesToken      = "${HAN_FILES}"
	PluginRootToken = "${CLAUDE_PLUGIN_ROOT}"
)

// Environment variables exposed to hook commands.
const (
	EnvPluginRoot = "CLAUDE_PLUGIN_ROOT"
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
	EnvSessionID  = "HAN_SESSION_ID"
	EnvProvider   = "HAN_PROVIDER"
	EnvFiles      = "HAN_FILES"
	EnvFile       = "HAN_FILE"
)

// NeedsFiles reports whether a command template consumes the file list.
func NeedsFiles(command string) bool {
	return strings.Contains(command, FilesToken) || strings.Contains(command, "$"+EnvFiles)
}

// Substitute expands the files and plugin root placeholders.
func Substitute(hook models.HookDefinition, files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = shellQuote(f)
	}
	cmd := strings.ReplaceAll(hook.Command, FilesToken, strings.Join(quoted, " "))
	return strings.ReplaceAll(cmd, PluginRootToken, shellQuote(hook.PluginRoot))
}

func buildEnv(hook models.HookDefinition, files []string, opts Options) []string {
	first := ""
	if len(files) > 0 {
		first = files[0]
	}
	return append(os.Environ(),
		EnvPluginRoot+"="+hook.PluginRoot,
		EnvProjectDir+"="+opts.Cwd,
		EnvSessionID+"="+opts.SessionID,
		EnvProvider+"="+opts.Provider,
		EnvFiles+"="+strings.Join(files, " "),
		EnvFile+"="+first,
	)
}

// shellQuote leaves ordinary paths untouched and single-quotes the rest.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./+,:@%=", r):
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
