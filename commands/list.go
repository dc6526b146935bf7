package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/internal/discovery"
	"github.com/mattsolo1/han-bridge/internal/git"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/utils"
)

func newListCmd() *cobra.Command {
	var (
		eventFilter string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the hooks declared by the project's enabled plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir := resolveProject("")
			defs := discovery.DiscoverHooks(projectDir)

			if eventFilter != "" {
				event, ok := normalizeEvent(eventFilter)
				if !ok {
					return fmt.Errorf("unknown event %q", eventFilter)
				}
				defs = discovery.GetHooksByEvent(defs, event)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if defs == nil {
					defs = []models.HookDefinition{}
				}
				data, err := json.MarshalIndent(defs, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal hooks to JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			info := git.GetInfo(projectDir)
			fmt.Fprintf(out, "%s %s\n\n", headerStyle.Render(info.Repository), dimStyle.Render("("+info.Branch+") "+projectDir))

			if len(defs) == 0 {
				fmt.Fprintln(out, "No hooks found")
				return nil
			}

			t := newTable("HOOK", "EVENTS", "TOOLS", "FILES", "TIMEOUT", "COMMAND")
			for _, h := range defs {
				timeout := "-"
				if h.Timeout > 0 {
					timeout = utils.FormatDuration(h.Timeout)
				}
				t.Row(
					h.ID(),
					strings.Join(h.Events, ","),
					orDash(strings.Join(h.ToolFilter, ",")),
					orDash(strings.Join(h.FileFilter, ",")),
					timeout,
					utils.TruncateStr(h.Command, 60),
				)
			}
			t.Render(out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventFilter, "event", "e", "", "Only list hooks for this event")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output hooks as JSON")

	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
