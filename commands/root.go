package commands

import (
	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/config"
	bridgeconfig "github.com/mattsolo1/han-bridge/internal/config"
	"github.com/mattsolo1/han-bridge/internal/logging"
)

var log = logging.NewLogger("han-bridge.commands")

// Global flags and the configuration loaded from them.
var (
	configPath  string
	verbose     bool
	projectFlag string

	appConfig *config.Config
)

// NewRootCmd creates the root command for han-bridge.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "han-bridge",
		Short: "Run plugin validation hooks for AI coding-agent hosts",
		Long: `han-bridge discovers validation hooks declared by enabled plugins and runs
them when the agent host reports lifecycle events. Failures are turned into
messages the agent can act on.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bridgeconfig.LoadFrom(configPath)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if verbose {
				level = "debug"
			}
			if err := logging.Configure(level, cfg.LogFormat); err != nil {
				return err
			}
			appConfig = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to the bridge configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project directory (defaults to CLAUDE_PROJECT_DIR or the event's cwd)")

	rootCmd.AddCommand(newPreToolUseCmd())
	rootCmd.AddCommand(newPostToolUseCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(NewInstallCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// currentConfig returns the loaded configuration, falling back to defaults
// when a command runs without the root's pre-run hook.
func currentConfig() *config.Config {
	if appConfig == nil {
		appConfig = bridgeconfig.Load()
	}
	return appConfig
}
