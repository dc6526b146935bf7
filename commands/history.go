package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/internal/storage/disk"
	"github.com/mattsolo1/han-bridge/internal/storage/interfaces"
	"github.com/mattsolo1/han-bridge/internal/utils"
)

func newHistoryCmd() *cobra.Command {
	var (
		sessionID  string
		plugin     string
		failedOnly bool
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded hook executions",
		Long:  `Show hook executions recorded in the history database, newest first. Recording is enabled with history.enabled in the bridge configuration.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			execs, err := store.ListExecutions(interfaces.ExecutionFilter{
				SessionID:  sessionID,
				Plugin:     plugin,
				FailedOnly: failedOnly,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(execs)
			}

			if len(execs) == 0 {
				fmt.Fprintln(out, "No executions found")
				return nil
			}

			t := newTable("EXECUTED", "SESSION", "EVENT", "HOOK", "STATUS", "EXIT", "DURATION")
			for _, e := range execs {
				t.Row(
					e.ExecutedAt.Local().Format("2006-01-02 15:04:05"),
					utils.TruncateStr(e.SessionID, 12),
					e.Event,
					e.Plugin+"/"+e.Hook,
					statusCell(e.Passed),
					fmt.Sprintf("%d", e.ExitCode),
					utils.FormatDuration(time.Duration(e.DurationMs)*time.Millisecond),
				)
			}
			t.Render(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Only show executions from this session")
	cmd.Flags().StringVarP(&plugin, "plugin", "p", "", "Only show executions of this plugin's hooks")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed executions")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of executions to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output executions as JSON")

	cmd.AddCommand(newHistorySessionsCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistorySessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Summarize recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}

			t := newTable("SESSION ID", "RUNS", "FAILURES", "FIRST RUN", "LAST RUN")
			for _, s := range sessions {
				failures := fmt.Sprintf("%d", s.Failures)
				if s.Failures > 0 {
					failures = failStyle.Render(failures)
				}
				t.Row(s.SessionID, fmt.Sprintf("%d", s.Executions), failures, s.FirstRun, s.LastRun)
			}
			t.Render(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of sessions to show")

	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete executions older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %v", olderThan)
			}

			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			log.WithField("removed", removed).Debug("Pruned hook history")
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d execution(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove executions recorded before this long ago")

	return cmd
}

// openHistory opens the configured database even when recording is off, so
// older history stays readable.
func openHistory() (interfaces.ExecutionStorer, error) {
	store, err := disk.NewSQLiteStore(currentConfig().History.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	return store, nil
}
