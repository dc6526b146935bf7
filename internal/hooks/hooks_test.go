package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsolo1/han-bridge/internal/cache"
	"github.com/mattsolo1/han-bridge/internal/discovery"
	"github.com/mattsolo1/han-bridge/internal/eventlog"
	"github.com/mattsolo1/han-bridge/internal/executor"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/settings"
	"github.com/mattsolo1/han-bridge/internal/storage/interfaces"
)

type recorder struct {
	mu    sync.Mutex
	notes []Notification
	err   error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return r.err
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

type memoryHistory struct {
	mu   sync.Mutex
	rows []*models.HookExecution
}

func (m *memoryHistory) RecordExecution(e *models.HookExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, e)
	return nil
}

func (m *memoryHistory) ListExecutions(interfaces.ExecutionFilter) ([]*models.HookExecution, error) {
	return m.rows, nil
}

func (m *memoryHistory) ListSessions(int) ([]*interfaces.SessionSummary, error) { return nil, nil }

func (m *memoryHistory) Prune(time.Time) (int64, error) { return 0, nil }

func (m *memoryHistory) Close() error { return nil }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func runCount(t *testing.T, project string) int {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(project, "runs.log"))
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

type fixture struct {
	project  string
	cache    *cache.Cache
	notifier *recorder
	bridge   *Bridge
}

func newFixture(t *testing.T, hooks []models.HookDefinition, configure ...func(*BridgeOptions)) *fixture {
	t.Helper()
	project := t.TempDir()
	c := cache.New()
	rec := &recorder{}
	opts := BridgeOptions{
		ProjectDir: project,
		SessionID:  "session-1",
		Provider:   "claude",
		Executor:   executor.New(executor.Config{Cache: c, DefaultTimeout: 10 * time.Second}),
		Notifier:   rec,
		Hooks:      hooks,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return &fixture{project: project, cache: c, notifier: rec, bridge: NewBridge(opts)}
}

func editInput(tool, path string) PostToolUseInput {
	return PostToolUseInput{
		BaseHookInput: BaseHookInput{SessionID: "session-1", HookEventName: models.EventPostToolUse},
		ToolName:      tool,
		ToolInput:     map[string]any{"file_path": path},
		ToolUseID:     "toolu_1",
	}
}

func lintHook(command string, events ...string) models.HookDefinition {
	if len(events) == 0 {
		events = []string{models.EventPostToolUse}
	}
	return models.HookDefinition{
		Name:       "lint",
		PluginName: "lintcheck",
		Events:     events,
		Command:    command,
		FileFilter: []string{"*.ts"},
	}
}

func TestPostToolUseReportsLintFailure(t *testing.T) {
	h := lintHook(`test "$HAN_FILES" = src/a.ts || exit 9; echo "unused variable 'x'" >&2; exit 1 # ${HAN_FILES}`)
	f := newFixture(t, []models.HookDefinition{h})
	file := filepath.Join(f.project, "src", "a.ts")
	writeFile(t, file, "const x = 1\n")

	out := f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))

	require.Len(t, out.Results, 1)
	assert.Equal(t, 1, out.Results[0].ExitCode)
	assert.Equal(t, []string{"src/a.ts"}, out.Results[0].Files)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, `<validation plugin="lintcheck" hook="lint" status="failed">unused variable 'x'</validation>`)

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventPostToolUse, notes[0].Event)
	assert.Equal(t, "toolu_1", notes[0].ToolUseID)
	assert.Equal(t, out.Message, notes[0].Message)
	assert.Equal(t, []string{file}, f.bridge.ModifiedFiles())
}

func TestPostToolUseSkipsUnmatchedFiles(t *testing.T) {
	f := newFixture(t, []models.HookDefinition{lintHook("exit 1 # ${HAN_FILES}")})
	file := filepath.Join(f.project, "README.md")
	writeFile(t, file, "# hi\n")

	out := f.bridge.HandlePostToolUse(context.Background(), editInput("Write", file))

	assert.Empty(t, out.Results)
	assert.False(t, out.Failed())
	assert.Empty(t, f.notifier.all())
	assert.Equal(t, []string{file}, f.bridge.ModifiedFiles(), "edits are tracked even when no hook matches")
}

func TestPostToolUseInvalidatesOnEveryEdit(t *testing.T) {
	h := lintHook(`echo run >> runs.log # ${HAN_FILES}`, models.EventPostToolUse, models.EventStop)
	f := newFixture(t, []models.HookDefinition{h})
	file := filepath.Join(f.project, "src", "a.ts")
	writeFile(t, file, "const a = 1\n")

	first := f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))
	require.Len(t, first.Results, 1)
	assert.False(t, first.Results[0].Skipped)
	assert.Equal(t, 1, f.cache.Len())

	// Same content again: the observed edit still forces revalidation.
	second := f.bridge.HandlePostToolUse(context.Background(), editInput("Write", file))
	require.Len(t, second.Results, 1)
	assert.False(t, second.Results[0].Skipped)
	assert.Equal(t, 2, runCount(t, f.project))

	// Stop reuses the PostToolUse validation without spawning.
	stop := f.bridge.HandleStop(context.Background(), StopInput{})
	require.Len(t, stop.Results, 1)
	assert.True(t, stop.Results[0].Skipped)
	assert.Equal(t, 2, runCount(t, f.project))
}

func TestPostToolUseFailedToolIsNotTracked(t *testing.T) {
	f := newFixture(t, nil)
	in := editInput("Edit", filepath.Join(f.project, "a.ts"))
	msg := "old_string not found"
	in.ToolError = &msg

	f.bridge.HandlePostToolUse(context.Background(), in)

	assert.Empty(t, f.bridge.ModifiedFiles())
}

func TestHandleStopUsesModifiedFiles(t *testing.T) {
	hooks := []models.HookDefinition{
		{Name: "ts", PluginName: "p", Events: []string{models.EventStop}, FileFilter: []string{"*.ts"},
			Command: `echo "ts: $HAN_FILES"; exit 1`},
		{Name: "go", PluginName: "p", Events: []string{models.EventStop}, FileFilter: []string{"*.go"},
			Command: `echo never; exit 1`},
		{Name: "all", PluginName: "p", Events: []string{models.EventStop},
			Command: `echo "all: ${HAN_FILES}"`},
		{Name: "post", PluginName: "p", Events: []string{models.EventPostToolUse}, Command: "exit 1"},
	}
	f := newFixture(t, hooks)
	a := filepath.Join(f.project, "src", "a.ts")
	readme := filepath.Join(f.project, "README.md")
	writeFile(t, a, "x")
	writeFile(t, readme, "y")
	f.bridge.RecordFileChange("Edit", a)
	f.bridge.RecordFileChange("Write", readme)

	out := f.bridge.HandleStop(context.Background(), StopInput{BaseHookInput: BaseHookInput{HookEventName: models.EventStop}})

	byName := map[string]models.HookResult{}
	for _, r := range out.Results {
		byName[r.Hook.Name] = r
	}
	require.Len(t, byName, 3)
	assert.Equal(t, "ts: src/a.ts\n", byName["ts"].Stdout)
	assert.True(t, byName["go"].Skipped)
	assert.Equal(t, "all: README.md src/a.ts\n", byName["all"].Stdout)
	assert.Contains(t, out.Message, `hook="ts"`)
	assert.NotContains(t, out.Message, `hook="go"`)

	notes := f.notifier.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventStop, notes[0].Event)
}

func TestHandleStopRespectsDirMarkers(t *testing.T) {
	hooks := []models.HookDefinition{
		{Name: "cargo", PluginName: "rust", Events: []string{models.EventStop}, DirsWith: []string{"Cargo.toml"}, Command: "exit 1"},
	}
	f := newFixture(t, hooks)

	out := f.bridge.HandleStop(context.Background(), StopInput{})

	assert.Empty(t, out.Results)
	assert.False(t, out.Failed())
}

func TestSubagentStopSelectsItsOwnHooks(t *testing.T) {
	hooks := []models.HookDefinition{
		{Name: "stop", PluginName: "p", Events: []string{models.EventStop}, Command: "echo stop"},
		{Name: "sub", PluginName: "p", Events: []string{models.EventSubagentStop}, Command: "echo sub"},
	}
	f := newFixture(t, hooks)

	out := f.bridge.HandleStop(context.Background(), StopInput{BaseHookInput: BaseHookInput{HookEventName: "SubagentStop"}})

	require.Len(t, out.Results, 1)
	assert.Equal(t, "sub", out.Results[0].Hook.Name)
	assert.Equal(t, models.EventSubagentStop, out.Event)
}

func TestPreToolUseDeniesOnFailure(t *testing.T) {
	hooks := []models.HookDefinition{
		{Name: "guard", PluginName: "safety", Events: []string{models.EventPreToolUse}, ToolFilter: []string{"Bash"},
			Command: "echo 'blocked by policy'; exit 2"},
	}
	f := newFixture(t, hooks)
	in := PreToolUseInput{ToolName: "Bash", ToolInput: map[string]any{"command": "rm -rf /"}, ToolUseID: "toolu_9"}

	out := f.bridge.HandlePreToolUse(context.Background(), in)
	require.True(t, out.Failed())

	data, err := EncodeResponse(f.notifier.all()[0])
	require.NoError(t, err)
	var resp PreToolUseResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Equal(t, "deny", resp.HookSpecificOutput.PermissionDecision)
	assert.Contains(t, resp.HookSpecificOutput.PermissionDecisionReason, "blocked by policy")

	other := f.bridge.HandlePreToolUse(context.Background(), PreToolUseInput{ToolName: "Read"})
	assert.Empty(t, other.Results)
}

func TestNotifierFailureIsContained(t *testing.T) {
	f := newFixture(t, []models.HookDefinition{lintHook("echo bad; exit 1 # ${HAN_FILES}")})
	f.notifier.err = errors.New("host went away")
	file := filepath.Join(f.project, "a.ts")
	writeFile(t, file, "x")

	out := f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))
	assert.True(t, out.Failed())

	again := f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))
	assert.True(t, again.Failed())
	assert.Len(t, f.notifier.all(), 2)
}

func TestHistoryRecordsExecutedHooks(t *testing.T) {
	history := &memoryHistory{}
	hooks := []models.HookDefinition{
		{Name: "ok", PluginName: "p", Events: []string{models.EventStop}, Command: "echo fine"},
		{Name: "bad", PluginName: "p", Events: []string{models.EventStop}, Command: "echo out; echo err >&2; exit 3"},
		{Name: "skip", PluginName: "p", Events: []string{models.EventStop}, FileFilter: []string{"*.rs"}, Command: "true"},
	}
	f := newFixture(t, hooks, func(o *BridgeOptions) { o.History = history })

	f.bridge.HandleStop(context.Background(), StopInput{})

	require.Len(t, history.rows, 2)
	rows := map[string]*models.HookExecution{}
	for _, r := range history.rows {
		rows[r.Hook] = r
	}
	assert.True(t, rows["ok"].Passed)
	assert.Equal(t, "session-1", rows["ok"].SessionID)
	assert.Equal(t, models.EventStop, rows["ok"].Event)
	assert.NotEmpty(t, rows["ok"].ID)
	assert.False(t, rows["bad"].Passed)
	assert.Equal(t, 3, rows["bad"].ExitCode)
	assert.Equal(t, "out\n", rows["bad"].Output)
	assert.Equal(t, "err\n", rows["bad"].Error)
}

func TestBridgeRestoresSessionFromEventLog(t *testing.T) {
	logRoot := t.TempDir()
	h := lintHook(`echo run >> runs.log # ${HAN_FILES}`, models.EventPostToolUse, models.EventStop)
	f := newFixture(t, []models.HookDefinition{h}, func(o *BridgeOptions) {
		o.Events = eventlog.New(eventlog.Config{Root: logRoot, SessionID: "session-1", ProjectDir: o.ProjectDir})
		o.Executor = executor.New(executor.Config{Cache: cache.New(), Events: o.Events})
	})
	file := filepath.Join(f.project, "src", "a.ts")
	writeFile(t, file, "const a = 1\n")

	f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))
	require.NoError(t, f.bridge.Close())
	require.Equal(t, 1, runCount(t, f.project))

	// A second process for the same session picks up where the first left off.
	events := eventlog.New(eventlog.Config{Root: logRoot, SessionID: "session-1", ProjectDir: f.project})
	restored := NewBridge(BridgeOptions{
		ProjectDir: f.project,
		SessionID:  "session-1",
		Executor:   executor.New(executor.Config{Cache: cache.New(), Events: events}),
		Events:     events,
		Hooks:      []models.HookDefinition{h},
	})

	assert.Equal(t, []string{file}, restored.ModifiedFiles())
	out := restored.HandleStop(context.Background(), StopInput{})
	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Skipped)
	assert.Equal(t, 1, runCount(t, f.project))

	writeFile(t, file, "const a = 2\n")
	out = restored.HandleStop(context.Background(), StopInput{})
	assert.False(t, out.Results[0].Skipped)
	assert.Equal(t, 2, runCount(t, f.project))
}

func TestRestoreIgnoresPassesOfChangedCommands(t *testing.T) {
	logRoot := t.TempDir()
	h := lintHook(`true # ${HAN_FILES}`, models.EventPostToolUse, models.EventStop)
	f := newFixture(t, []models.HookDefinition{h}, func(o *BridgeOptions) {
		o.Events = eventlog.New(eventlog.Config{Root: logRoot, SessionID: "session-2", ProjectDir: o.ProjectDir})
		o.Executor = executor.New(executor.Config{Cache: cache.New(), Events: o.Events})
	})
	file := filepath.Join(f.project, "src", "a.ts")
	writeFile(t, file, "const a = 1\n")

	out := f.bridge.HandlePostToolUse(context.Background(), editInput("Edit", file))
	require.False(t, out.Failed())
	require.NoError(t, f.bridge.Close())

	updated := h
	updated.Command = `echo "new rule violated" >&2; exit 1 # ${HAN_FILES}`
	events := eventlog.New(eventlog.Config{Root: logRoot, SessionID: "session-2", ProjectDir: f.project})
	c := cache.New()
	restored := NewBridge(BridgeOptions{
		ProjectDir: f.project,
		SessionID:  "session-2",
		Executor:   executor.New(executor.Config{Cache: c, Events: events}),
		Events:     events,
		Hooks:      []models.HookDefinition{updated},
	})
	assert.Equal(t, 0, c.Len())

	out = restored.HandleStop(context.Background(), StopInput{})
	require.Len(t, out.Results, 1)
	assert.False(t, out.Results[0].Skipped)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Message, "new rule violated")
}

func TestFilesystemChangesInvalidateWithoutTracking(t *testing.T) {
	h := lintHook("true # ${HAN_FILES}")
	f := newFixture(t, []models.HookDefinition{h})
	file := filepath.Join(f.project, "a.ts")
	writeFile(t, file, "x")
	f.cache.RecordSuccess("lintcheck", "lint", file)

	f.bridge.RecordFileChange(FilesystemTool, file)

	assert.Equal(t, 0, f.cache.Len())
	assert.Empty(t, f.bridge.ModifiedFiles())
}

func TestClearCache(t *testing.T) {
	f := newFixture(t, nil)
	file := filepath.Join(f.project, "a.ts")
	writeFile(t, file, "x")
	f.cache.RecordSuccess("p", "h", file)

	f.bridge.ClearCache()

	assert.Equal(t, 0, f.cache.Len())
}

func TestNewBridgeRunsDiscovery(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, ".claude", "settings.json"), `{"enabledPlugins": {"lintcheck@han": true}}`)
	writeFile(t, filepath.Join(project, settings.MarketplaceFile), `{"plugins": [{"name": "lintcheck", "source": "./plugins/lintcheck"}]}`)
	writeFile(t, filepath.Join(project, "plugins", "lintcheck", "han-plugin.yml"), `
hooks:
  lint:
    event: PostToolUse
    command: "eslint ${HAN_FILES}"
    file_filter: ["*.ts"]
`)

	b := NewBridge(BridgeOptions{
		ProjectDir: project,
		Executor:   executor.New(executor.Config{}),
		Discoverer: &discovery.Discoverer{Settings: &settings.Reader{UserSettingsPath: filepath.Join(project, "no-user-settings.json")}},
	})

	require.Len(t, b.Hooks(), 1)
	assert.Equal(t, "lintcheck/lint", b.Hooks()[0].ID())
	assert.Equal(t, filepath.Join(project, "plugins", "lintcheck"), b.Hooks()[0].PluginRoot)
}

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{models.EventStop, `{"decision":"block","reason":"fix it"}`},
		{models.EventSubagentStop, `{"decision":"block","reason":"fix it"}`},
		{models.EventPreToolUse, `{"hookSpecificOutput":{"hookEventName":"PreToolUse","permissionDecision":"deny","permissionDecisionReason":"fix it"}}`},
		{models.EventPostToolUse, `{"decision":"block","reason":"fix it","hookSpecificOutput":{"hookEventName":"PostToolUse","additionalContext":"fix it"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			got, err := EncodeResponse(Notification{Event: tt.event, Message: "fix it"})
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}

	_, err := EncodeResponse(Notification{Event: "Notification"})
	assert.Error(t, err)
}

func TestStreamNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewStreamNotifier(&buf)

	require.NoError(t, n.Notify(context.Background(), Notification{Event: models.EventStop, Message: "a"}))
	require.NoError(t, n.Notify(context.Background(), Notification{Event: models.EventPostToolUse, ToolUseID: "t", Message: "b"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"event":"PostToolUse","tool_use_id":"t","message":"b"}`, lines[1])
}

func TestInputHelpers(t *testing.T) {
	assert.True(t, IsEditTool("Edit"))
	assert.True(t, IsEditTool("multiedit"))
	assert.True(t, IsEditTool("NotebookEdit"))
	assert.False(t, IsEditTool("Read"))
	assert.False(t, IsEditTool("Bash"))

	in := PostToolUseInput{ToolInput: map[string]any{"notebook_path": "/p/n.ipynb"}}
	assert.Equal(t, "/p/n.ipynb", in.FilePath())
	assert.True(t, in.Succeeded())

	in.ToolResponse = map[string]any{"success": false}
	assert.False(t, in.Succeeded())

	assert.Equal(t, models.EventStop, StopInput{}.Event())
}

func TestNewHookContext(t *testing.T) {
	hc, err := NewHookContext(strings.NewReader(`{"session_id":"s","hook_event_name":"PostToolUse","cwd":"/work","tool_name":"Edit","tool_input":{"file_path":"a.ts"}}`))
	require.NoError(t, err)
	assert.Equal(t, "s", hc.Input.SessionID)

	var in PostToolUseInput
	require.NoError(t, hc.Decode(&in))
	assert.Equal(t, "Edit", in.ToolName)
	assert.Equal(t, "a.ts", in.FilePath())

	t.Setenv("CLAUDE_PROJECT_DIR", "")
	assert.Equal(t, "/work", hc.ProjectDir())

	_, err = NewHookContext(strings.NewReader("not json"))
	assert.Error(t, err)
}
