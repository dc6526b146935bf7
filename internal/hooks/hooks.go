package hooks

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/han-bridge/internal/discovery"
	"github.com/mattsolo1/han-bridge/internal/eventlog"
	"github.com/mattsolo1/han-bridge/internal/executor"
	"github.com/mattsolo1/han-bridge/internal/format"
	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/matcher"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/storage/interfaces"
)

var log = logging.NewLogger("han-bridge.hooks")

// Tool name recorded for changes seen outside the agent's own tools.
const FilesystemTool = "fs"

// BridgeOptions configures a Bridge. Executor is required; everything else
// may be left zero.
type BridgeOptions struct {
	ProjectDir string
	SessionID  string
	Provider   string
	Executor   *executor.Executor
	Events     *eventlog.Logger
	History    interfaces.ExecutionStorer
	Notifier   Notifier
	// Hooks skips discovery when non-nil.
	Hooks      []models.HookDefinition
	Discoverer *discovery.Discoverer
}

// Bridge turns host lifecycle events into hook batches for one agent
// session. Handlers may be called concurrently.
type Bridge struct {
	projectDir string
	sessionID  string
	provider   string
	hooks      []models.HookDefinition
	exec       *executor.Executor
	events     *eventlog.Logger
	history    interfaces.ExecutionStorer
	notifier   Notifier

	mu       sync.Mutex
	modified map[string]struct{}
}

// Outcome is what a handler produced for one event occurrence.
type Outcome struct {
	Event   string
	Results []models.HookResult
	// Message is empty when nothing failed.
	Message string
}

// Failed reports whether any hook in the batch failed.
func (o Outcome) Failed() bool {
	return o.Message != ""
}

// NewBridge discovers hooks once and restores session state from the event
// log, if one exists.
func NewBridge(opts BridgeOptions) *Bridge {
	hooks := opts.Hooks
	if hooks == nil {
		d := opts.Discoverer
		if d == nil {
			d = discovery.New()
		}
		hooks = d.DiscoverHooks(opts.ProjectDir)
	}

	b := &Bridge{
		projectDir: opts.ProjectDir,
		sessionID:  opts.SessionID,
		provider:   opts.Provider,
		hooks:      hooks,
		exec:       opts.Executor,
		events:     opts.Events,
		history:    opts.History,
		notifier:   opts.Notifier,
		modified:   make(map[string]struct{}),
	}
	b.restore()

	log.WithFields(logrus.Fields{
		"project":    opts.ProjectDir,
		"session_id": opts.SessionID,
		"hooks":      len(hooks),
	}).Debug("Bridge ready")
	return b
}

// Hooks returns the discovered hook definitions.
func (b *Bridge) Hooks() []models.HookDefinition {
	return b.hooks
}

// ProjectDir returns the project the bridge validates.
func (b *Bridge) ProjectDir() string {
	return b.projectDir
}

// HandlePreToolUse runs PreToolUse hooks that match the tool and its file.
// A failure message asks the host to deny the tool call.
func (b *Bridge) HandlePreToolUse(ctx context.Context, in PreToolUseInput) Outcome {
	file := b.absolute(in.FilePath())
	candidates := discovery.GetHooksByEvent(b.hooks, models.EventPreToolUse)
	matched := matcher.MatchForToolEvent(candidates, in.ToolName, file, b.projectDir)
	return b.run(ctx, models.EventPreToolUse, in.ToolUseID, b.tasks(matched, b.fileList(file)))
}

// HandlePostToolUse records an edit, then validates the touched file with
// the matching PostToolUse hooks.
func (b *Bridge) HandlePostToolUse(ctx context.Context, in PostToolUseInput) Outcome {
	file := b.absolute(in.FilePath())
	if file != "" && IsEditTool(in.ToolName) && in.Succeeded() {
		b.RecordFileChange(in.ToolName, file)
	}

	candidates := discovery.GetHooksByEvent(b.hooks, models.EventPostToolUse)
	matched := matcher.MatchForToolEvent(candidates, in.ToolName, file, b.projectDir)
	return b.run(ctx, models.EventPostToolUse, in.ToolUseID, b.tasks(matched, b.fileList(file)))
}

// HandleStop runs the idle hooks over the files modified during the
// session. Hooks with a file filter run only on the modified files it
// admits, and are skipped when there are none.
func (b *Bridge) HandleStop(ctx context.Context, in StopInput) Outcome {
	event := in.Event()
	candidates := discovery.GetHooksByEvent(b.hooks, event)
	matched := matcher.MatchForIdleEvent(candidates, b.projectDir)

	modified := b.ModifiedFiles()
	var tasks []executor.Task
	var skipped []models.HookResult
	for _, h := range matched {
		var files []string
		for _, f := range modified {
			if matcher.MatchesFile(h, f, b.projectDir) {
				files = append(files, b.relative(f))
			}
		}
		if len(h.FileFilter) > 0 && len(files) == 0 {
			skipped = append(skipped, models.HookResult{Hook: h, Skipped: true})
			continue
		}
		tasks = append(tasks, executor.Task{Hook: h, Files: files})
	}

	out := b.run(ctx, event, "", tasks)
	out.Results = append(out.Results, skipped...)
	return out
}

// RecordFileChange invalidates cached validations of path and logs the
// change. Changes made through agent tools are remembered for Stop.
func (b *Bridge) RecordFileChange(toolName, path string) {
	abs := b.absolute(path)
	removed := 0
	if c := b.exec.Cache(); c != nil {
		removed = c.Invalidate(abs)
	}
	if toolName != FilesystemTool {
		b.mu.Lock()
		b.modified[abs] = struct{}{}
		b.mu.Unlock()
	}
	b.events.LogFileChange(toolName, abs)

	log.WithFields(logrus.Fields{
		"tool":        toolName,
		"file":        abs,
		"invalidated": removed,
	}).Debug("File changed")
}

// ClearCache drops every cached validation.
func (b *Bridge) ClearCache() {
	if c := b.exec.Cache(); c != nil {
		c.Clear()
	}
}

// ModifiedFiles returns the absolute paths edited during the session.
func (b *Bridge) ModifiedFiles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.modified))
	for f := range b.modified {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Close flushes the event log.
func (b *Bridge) Close() error {
	return b.events.Close()
}

func (b *Bridge) run(ctx context.Context, event, toolUseID string, tasks []executor.Task) Outcome {
	out := Outcome{Event: event}
	if len(tasks) == 0 {
		return out
	}

	out.Results = b.exec.RunTasks(ctx, tasks, executor.Options{
		Cwd:       b.projectDir,
		SessionID: b.sessionID,
		Provider:  b.provider,
		EventType: event,
	})
	b.recordHistory(event, out.Results)

	msg, failed := format.FormatFailuresOnly(out.Results)
	if !failed {
		return out
	}
	out.Message = msg

	if b.notifier != nil {
		n := Notification{Event: event, SessionID: b.sessionID, ToolUseID: toolUseID, Message: msg}
		if err := b.notifier.Notify(ctx, n); err != nil {
			log.WithError(err).WithField("event", event).Warn("Failed to deliver validation message")
		}
	}
	return out
}

func (b *Bridge) tasks(hooks []models.HookDefinition, files []string) []executor.Task {
	tasks := make([]executor.Task, len(hooks))
	for i, h := range hooks {
		tasks[i] = executor.Task{Hook: h, Files: files}
	}
	return tasks
}

func (b *Bridge) recordHistory(event string, results []models.HookResult) {
	if b.history == nil {
		return
	}
	for _, r := range results {
		if r.Skipped {
			continue
		}
		if err := b.history.RecordExecution(executionRecord(r, b.sessionID, event, b.projectDir)); err != nil {
			log.WithError(err).WithField("hook", r.Hook.ID()).Warn("Failed to record hook execution")
		}
	}
}

// restore replays the session's event log so a fresh process knows which
// files were edited and which validations still hold.
func (b *Bridge) restore() {
	path := b.events.Path()
	if path == "" {
		return
	}
	records, err := eventlog.ReadRecords(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to read event log")
	}

	c := b.exec.Cache()
	for _, rec := range records {
		switch rec.Type {
		case models.EventTypeHookFileChange:
			var data models.FileChangeData
			if json.Unmarshal(rec.Data, &data) != nil || data.FilePath == "" {
				continue
			}
			abs := b.absolute(data.FilePath)
			if c != nil {
				c.Invalidate(abs)
			}
			if data.ToolName != FilesystemTool {
				b.modified[abs] = struct{}{}
			}
		case models.EventTypeHookValidationCache:
			var data models.ValidationCacheData
			if c == nil || json.Unmarshal(rec.Data, &data) != nil {
				continue
			}
			// A pass recorded for a different command says nothing about the current one.
			if want, ok := b.commandHash(data.Plugin, data.Hook); !ok || data.CommandHash != want {
				continue
			}
			for file, hash := range data.Files {
				c.Seed(data.Plugin, data.Hook, absoluteIn(data.Directory, file), hash)
			}
		}
	}
	if len(records) > 0 {
		log.WithFields(logrus.Fields{
			"records":  len(records),
			"modified": len(b.modified),
		}).Debug("Restored session state from event log")
	}
}

// commandHash returns the hash of the current command of plugin/hook.
func (b *Bridge) commandHash(plugin, hook string) (string, bool) {
	for _, h := range b.hooks {
		if h.PluginName == plugin && h.Name == hook {
			return eventlog.CommandHash(h.Command), true
		}
	}
	return "", false
}

func (b *Bridge) absolute(path string) string {
	if path == "" {
		return ""
	}
	return absoluteIn(b.projectDir, path)
}

func (b *Bridge) relative(path string) string {
	if rel, ok := matcher.RelativeTo(b.projectDir, path); ok {
		return rel
	}
	return path
}

func (b *Bridge) fileList(abs string) []string {
	if abs == "" {
		return nil
	}
	return []string{b.relative(abs)}
}

func absoluteIn(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
