// Package eventlog appends hook lifecycle records to a per-session
// newline-delimited JSON file that an external indexer consumes.
package eventlog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/utils"
)

const (
	defaultDebounce  = 100 * time.Millisecond
	defaultMaxOutput = 10000
)

var log = logging.NewLogger("han-bridge.eventlog")

// Config identifies the session log and tunes buffering.
type Config struct {
	// Root is the provider directory; empty selects DefaultRoot(Provider).
	Root       string
	Provider   string
	SessionID  string
	ProjectDir string
	Debounce   time.Duration
	MaxOutput  int
}

// Logger buffers records and appends them to the session log. A nil *Logger
// discards everything, which is how a disabled event log is represented.
type Logger struct {
	cfg  Config
	path string

	mu      sync.Mutex
	pending [][]byte
	timer   *time.Timer
	now     func() time.Time
}

// New returns a Logger; nothing touches the filesystem until the first flush.
func New(cfg Config) *Logger {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot(cfg.Provider)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = defaultMaxOutput
	}
	return &Logger{
		cfg:  cfg,
		path: LogPath(cfg.Root, cfg.ProjectDir, cfg.SessionID),
		now:  time.Now,
	}
}

// DefaultRoot returns the provider-specific log root.
func DefaultRoot(provider string) string {
	if provider == "" || provider == "claude" {
		if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
			return dir
		}
		return utils.ExpandPath("~/.claude")
	}
	return utils.ExpandPath(filepath.Join("~/.han", provider))
}

// LogPath returns <root>/projects/<slug>/<sessionId>-han.jsonl.
func LogPath(root, projectDir, sessionID string) string {
	if abs, err := filepath.Abs(projectDir); err == nil {
		projectDir = abs
	}
	return filepath.Join(root, "projects", utils.ProjectSlug(projectDir), sessionID+"-han.jsonl")
}

// Path returns the session log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// LogHookRun records that a hook is starting and returns the correlation id
// for its result record.
func (l *Logger) LogHookRun(hook models.HookDefinition, eventType string, files []string) string {
	if l == nil {
		return ""
	}
	id := uuid.NewString()
	l.append(models.Event{
		UUID: id,
		Type: models.EventTypeHookRun,
		Data: models.HookRunData{
			Plugin:    hook.PluginName,
			Hook:      hook.Name,
			HookType:  eventType,
			Directory: l.cfg.ProjectDir,
			Command:   hook.Command,
			Files:     files,
		},
	})
	return id
}

// LogHookResult records a hook's outcome, referencing its hook_run record.
func (l *Logger) LogHookResult(result models.HookResult, eventType, hookRunID string) {
	if l == nil {
		return
	}
	data := models.HookResultData{
		Plugin:     result.Hook.PluginName,
		Hook:       result.Hook.Name,
		HookType:   eventType,
		Directory:  l.cfg.ProjectDir,
		Command:    result.Hook.Command,
		HookRunID:  hookRunID,
		ExitCode:   result.ExitCode,
		Success:    !result.Failed(),
		Skipped:    result.Skipped,
		DurationMs: result.Duration.Milliseconds(),
		Output:     TruncateOutput(result.Output(), l.cfg.MaxOutput),
	}
	if result.Failed() && strings.TrimSpace(result.Stderr) != "" && result.Stderr != result.Output() {
		data.Error = TruncateOutput(result.Stderr, l.cfg.MaxOutput)
	}
	l.append(models.Event{
		UUID:      uuid.NewString(),
		Type:      models.EventTypeHookResult,
		HookRunID: hookRunID,
		Data:      data,
	})
}

// LogFileChange records that the bridge saw filePath modified.
func (l *Logger) LogFileChange(toolName, filePath string) {
	if l == nil {
		return
	}
	l.append(models.Event{
		UUID: uuid.NewString(),
		Type: models.EventTypeHookFileChange,
		Data: models.FileChangeData{ToolName: toolName, FilePath: filePath},
	})
}

// LogValidationCache records the file hashes a hook validated successfully.
func (l *Logger) LogValidationCache(hook models.HookDefinition, files map[string]string) {
	if l == nil || len(files) == 0 {
		return
	}
	l.append(models.Event{
		UUID: uuid.NewString(),
		Type: models.EventTypeHookValidationCache,
		Data: models.ValidationCacheData{
			Plugin:      hook.PluginName,
			Hook:        hook.Name,
			Directory:   l.cfg.ProjectDir,
			CommandHash: CommandHash(hook.Command),
			Files:       files,
		},
	})
}

// Flush writes any buffered records now.
func (l *Logger) Flush() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes pending records and stops the debounce timer.
func (l *Logger) Close() error {
	return l.Flush()
}

func (l *Logger) append(ev models.Event) {
	ev.SessionID = l.cfg.SessionID
	ev.Provider = l.cfg.Provider
	ev.Cwd = l.cfg.ProjectDir
	ev.Timestamp = l.now().UTC().Format(time.RFC3339Nano)

	line, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).WithField("type", ev.Type).Error("Failed to encode event")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, line)

	if strings.HasSuffix(string(ev.Type), "_result") {
		if err := l.flushLocked(); err != nil {
			l.reportWriteError(err)
		}
		return
	}

	if l.timer == nil {
		var t *time.Timer
		t = time.AfterFunc(l.cfg.Debounce, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.timer == t {
				l.timer = nil
			}
			if err := l.flushLocked(); err != nil {
				l.reportWriteError(err)
			}
		})
		l.timer = t
	}
}

func (l *Logger) flushLocked() error {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if len(l.pending) == 0 {
		return nil
	}
	lines := l.pending
	l.pending = nil

	if err := ensureDir(filepath.Dir(l.path)); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

func (l *Logger) reportWriteError(err error) {
	log.WithError(err).WithFields(logrus.Fields{
		"path":       l.path,
		"session_id": l.cfg.SessionID,
	}).Error("Failed to write event log")
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("failed to create event log directory: %w", err)
	}
	return nil
}

// Record is an event read back from a session log with its payload left
// encoded.
type Record struct {
	models.Event
	Data json.RawMessage `json:"data"`
}

// ReadRecords returns the records of the log at path in file order. A
// missing log is empty; lines that do not decode are skipped.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			log.WithError(err).WithField("path", path).Debug("Skipping undecodable event log line")
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read event log: %w", err)
	}
	return out, nil
}

// TruncateOutput keeps the first max bytes of s and appends a marker stating
// how many bytes were elided.
func TruncateOutput(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s\n... [truncated %d bytes]", s[:cut], len(s)-cut)
}

// CommandHash fingerprints a hook command template.
func CommandHash(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}
