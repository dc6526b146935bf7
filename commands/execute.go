package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	bridgeconfig "github.com/mattsolo1/han-bridge/internal/config"
	"github.com/mattsolo1/han-bridge/internal/hooks"
)

// hookAliases maps symlink names to the lifecycle subcommand they run.
var hookAliases = map[string]string{
	"pretooluse":    "pretooluse",
	"pre-tool-use":  "pretooluse",
	"posttooluse":   "posttooluse",
	"post-tool-use": "posttooluse",
	"stop":          "stop",
	"subagent-stop": "stop",
	"complete":      "stop",
}

// Execute runs the appropriate command or hook based on how the binary was called.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := NewRootCmd()
	rootCmd.SetArgs(dispatchArgs(os.Args))

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// dispatchArgs turns a symlinked invocation such as "posttooluse" into the
// equivalent "han-bridge posttooluse" arguments.
func dispatchArgs(argv []string) []string {
	if len(argv) == 0 {
		return nil
	}
	if sub, ok := hookAliases[filepath.Base(argv[0])]; ok {
		return append([]string{sub}, argv[1:]...)
	}
	return argv[1:]
}

func defaultConfigPath() string {
	if path := os.Getenv("HAN_BRIDGE_CONFIG"); path != "" {
		return path
	}
	return bridgeconfig.DefaultPath
}

// resolveProject applies --project over the usual project directory
// precedence.
func resolveProject(cwd string) string {
	dir := projectFlag
	if dir == "" {
		dir = hooks.ResolveProjectDir(cwd)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
