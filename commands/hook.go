package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/internal/hooks"
	"github.com/mattsolo1/han-bridge/internal/models"
)

func newPreToolUseCmd() *cobra.Command {
	return newHookCmd("pretooluse", []string{"pre-tool-use"}, "Run PreToolUse hooks for one host event read from stdin", models.EventPreToolUse)
}

func newPostToolUseCmd() *cobra.Command {
	return newHookCmd("posttooluse", []string{"post-tool-use"}, "Run PostToolUse hooks for one host event read from stdin", models.EventPostToolUse)
}

func newStopCmd() *cobra.Command {
	return newHookCmd("stop", []string{"subagent-stop", "complete"}, "Run Stop or SubagentStop hooks for one host event read from stdin", models.EventStop)
}

func newHookCmd(use string, aliases []string, short, event string) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := hooks.NewHookContext(cmd.InOrStdin())
			if err != nil {
				return err
			}

			factory, err := newSessionFactory(currentConfig(), hooks.NewResponseNotifier(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			defer factory.Close()

			bridge := factory.newBridge(resolveProject(hc.Input.Cwd), hc.Input.SessionID)
			defer func() {
				if err := bridge.Close(); err != nil {
					log.WithError(err).Warn("Failed to flush event log")
				}
			}()

			out, err := dispatch(cmd.Context(), bridge, event, hc)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"event":    out.Event,
				"hooks":    len(out.Results),
				"failed":   out.Failed(),
				"duration": time.Since(hc.StartTime),
			}).Debug("Hook event handled")
			return nil
		},
	}
}

// normalizeEvent maps host event names, in any case, to lifecycle events.
func normalizeEvent(name string) (string, bool) {
	for _, e := range []string{models.EventPreToolUse, models.EventPostToolUse, models.EventStop, models.EventSubagentStop} {
		if strings.EqualFold(name, e) {
			return e, true
		}
	}
	return "", false
}

// dispatch decodes hc as event and hands it to the matching bridge handler.
func dispatch(ctx context.Context, b *hooks.Bridge, event string, hc *hooks.HookContext) (hooks.Outcome, error) {
	normalized, ok := normalizeEvent(event)
	if !ok {
		return hooks.Outcome{}, fmt.Errorf("unsupported hook event %q", event)
	}

	switch normalized {
	case models.EventPreToolUse:
		var in hooks.PreToolUseInput
		if err := hc.Decode(&in); err != nil {
			return hooks.Outcome{}, err
		}
		return b.HandlePreToolUse(ctx, in), nil
	case models.EventPostToolUse:
		var in hooks.PostToolUseInput
		if err := hc.Decode(&in); err != nil {
			return hooks.Outcome{}, err
		}
		return b.HandlePostToolUse(ctx, in), nil
	default:
		var in hooks.StopInput
		if err := hc.Decode(&in); err != nil {
			return hooks.Outcome{}, err
		}
		if in.HookEventName == "" {
			in.HookEventName = normalized
		}
		return b.HandleStop(ctx, in), nil
	}
}
