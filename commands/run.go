package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/internal/discovery"
	"github.com/mattsolo1/han-bridge/internal/executor"
	"github.com/mattsolo1/han-bridge/internal/format"
	"github.com/mattsolo1/han-bridge/internal/git"
	"github.com/mattsolo1/han-bridge/internal/matcher"
	"github.com/mattsolo1/han-bridge/internal/models"
)

// errHooksFailed makes the command exit non-zero after printing failures.
var errHooksFailed = errors.New("validation hooks failed")

func newRunCmd() *cobra.Command {
	var (
		eventName string
		changed   bool
		summary   bool
		sessionID string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run the hooks for an event against files",
		Long: `Run the hooks that fire on an event, outside of any agent session.
Hooks with a file filter receive only the files it admits and are skipped
when none match. With --changed, the files are taken from git.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			event, ok := normalizeEvent(eventName)
			if !ok {
				return fmt.Errorf("unknown event %q", eventName)
			}

			projectDir := resolveProject("")
			files, err := runFiles(projectDir, args, changed)
			if err != nil {
				return err
			}

			factory, err := newSessionFactory(currentConfig(), nil)
			if err != nil {
				return err
			}
			defer factory.Close()

			events := factory.newEventLog(projectDir, sessionID)
			defer func() {
				if err := events.Close(); err != nil {
					log.WithError(err).Warn("Failed to flush event log")
				}
			}()

			candidates := discovery.GetHooksByEvent(factory.discover(projectDir), event)
			tasks, skipped := planRun(candidates, files, projectDir)

			log.WithFields(logrus.Fields{
				"event": event,
				"hooks": len(tasks),
				"files": len(files),
			}).Debug("Running hooks")

			results := factory.newExecutor(events).RunTasks(cmd.Context(), tasks, executor.Options{
				Cwd:       projectDir,
				SessionID: sessionID,
				Provider:  currentConfig().Provider,
				EventType: event,
				Timeout:   timeout,
			})
			results = append(results, skipped...)

			out := cmd.OutOrStdout()
			msg, failed := format.FormatFailuresOnly(results)
			switch {
			case summary:
				fmt.Fprintln(out, format.FormatSummary(results))
			case failed:
				fmt.Fprintln(out, msg)
			case len(results) == 0:
				fmt.Fprintln(out, "No hooks matched")
			default:
				fmt.Fprintln(out, passStyle.Render(fmt.Sprintf("%d hook(s) passed", len(results))))
			}

			if failed {
				return errHooksFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&eventName, "event", "e", models.EventStop, "Event whose hooks should run")
	cmd.Flags().BoolVar(&changed, "changed", false, "Validate files changed in the git working tree")
	cmd.Flags().BoolVar(&summary, "summary", false, "Print passed, failed and skipped hooks")
	cmd.Flags().StringVar(&sessionID, "session", "", "Record the runs in this session's event log")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Timeout for hooks that do not declare one")

	return cmd
}

// runFiles returns the files to validate relative to projectDir.
func runFiles(projectDir string, args []string, changed bool) ([]string, error) {
	var abs []string
	for _, a := range args {
		p, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", a, err)
		}
		abs = append(abs, p)
	}
	if changed {
		root := git.ProjectRoot(projectDir)
		paths, err := git.ChangedFiles(projectDir)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			abs = append(abs, filepath.Join(root, p))
		}
	}

	files := make([]string, 0, len(abs))
	for _, p := range abs {
		if rel, ok := matcher.RelativeTo(projectDir, p); ok {
			p = rel
		}
		files = append(files, p)
	}
	return files, nil
}

// planRun pairs each hook with the files its filter admits. Without files,
// every hook whose directory markers are present runs once.
func planRun(hooks []models.HookDefinition, files []string, projectDir string) ([]executor.Task, []models.HookResult) {
	var tasks []executor.Task
	var skipped []models.HookResult
	for _, h := range matcher.MatchForIdleEvent(hooks, projectDir) {
		if len(files) == 0 {
			tasks = append(tasks, executor.Task{Hook: h})
			continue
		}
		var matched []string
		for _, f := range files {
			if matcher.MatchesFile(h, f, projectDir) {
				matched = append(matched, f)
			}
		}
		if len(matched) == 0 {
			skipped = append(skipped, models.HookResult{Hook: h, Skipped: true})
			continue
		}
		tasks = append(tasks, executor.Task{Hook: h, Files: matched})
	}
	return tasks, skipped
}
