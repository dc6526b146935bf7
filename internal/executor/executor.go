// Package executor runs hook commands as shell subprocesses, skipping work
// the validation cache proves unnecessary and fanning out batches in
// parallel.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mattsolo1/han-bridge/internal/cache"
	"github.com/mattsolo1/han-bridge/internal/eventlog"
	"github.com/mattsolo1/han-bridge/internal/logging"
	"github.com/mattsolo1/han-bridge/internal/models"
)

const (
	// DefaultTimeout applies when neither the hook nor the caller set one.
	DefaultTimeout = 120 * time.Second

	maxSpanOutput = 4096
	pipeWaitDelay = time.Second
)

var log = logging.NewLogger("han-bridge.executor")

// Config wires the executor's collaborators. Every field is optional.
type Config struct {
	Cache          *cache.Cache
	Events         *eventlog.Logger
	DefaultTimeout time.Duration
	// MaxConcurrency caps simultaneous hooks in a batch; zero is unbounded.
	MaxConcurrency int
	// RunWithoutFiles runs file-consuming commands even when no files apply.
	RunWithoutFiles bool
}

// Options describe the invocation a batch belongs to.
type Options struct {
	Cwd       string
	SessionID string
	Provider  string
	// EventType is the lifecycle event recorded in the event log.
	EventType string
	// Timeout overrides Config.DefaultTimeout for hooks without their own.
	Timeout time.Duration
}

// Task pairs a hook with the files it should validate.
type Task struct {
	Hook  models.HookDefinition
	Files []string
}

// Executor runs hooks. It is safe for concurrent use.
type Executor struct {
	cfg        Config
	tracer     trace.Tracer
	newCommand func(command string) *exec.Cmd
}

// New returns an Executor for cfg.
func New(cfg Config) *Executor {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	return &Executor{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/mattsolo1/han-bridge/executor"),
		newCommand: func(command string) *exec.Cmd {
			// #nosec G204 -- commands come from enabled plugin manifests
			return exec.Command("sh", "-c", command)
		},
	}
}

// Cache returns the validation cache, which may be nil.
func (e *Executor) Cache() *cache.Cache {
	return e.cfg.Cache
}

// RunOne executes a single hook against files and always returns a result;
// failures are encoded in the exit code rather than returned as errors.
func (e *Executor) RunOne(ctx context.Context, hook models.HookDefinition, files []string, opts Options) models.HookResult {
	result := models.HookResult{Hook: hook, Files: files}

	if e.allCached(hook, files, opts.Cwd) {
		log.WithFields(logrus.Fields{
			"hook":  hook.ID(),
			"files": len(files),
		}).Debug("All files unchanged since last success, skipping")
		result.Skipped = true
		return result
	}

	if NeedsFiles(hook.Command) && len(files) == 0 && !e.cfg.RunWithoutFiles {
		log.WithField("hook", hook.ID()).Debug("Command needs files but none matched, skipping")
		result.Skipped = true
		return result
	}

	timeout := e.timeoutFor(hook, opts)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "hook.exec",
		trace.WithAttributes(
			attribute.String("hook.plugin", hook.PluginName),
			attribute.String("hook.name", hook.Name),
			attribute.String("hook.event", opts.EventType),
			attribute.Int("hook.files", len(files)),
		),
	)
	defer span.End()

	runID := e.cfg.Events.LogHookRun(hook, opts.EventType, files)
	result.RunID = runID

	command := Substitute(hook, files)
	cmd := e.newCommand(command)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(hook, files, opts)
	cmd.WaitDelay = pipeWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcGroup(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		result.ExitCode = models.ExitCodeSpawnFailure
		result.Stderr = fmt.Sprintf("failed to start hook command %q: %v", command, err)
		result.Duration = time.Since(start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		e.cfg.Events.LogHookResult(result, opts.EventType, runID)
		return result
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if err := killProcessGroup(cmd); err != nil {
			log.WithError(err).WithField("hook", hook.ID()).Warn("Failed to kill timed out hook")
		}
		<-done
		result.TimedOut = true
		result.ExitCode = models.ExitCodeTimeout
	case waitErr = <-done:
		result.ExitCode = exitCode(cmd, waitErr)
	}
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if result.TimedOut {
		msg := fmt.Sprintf("hook timed out after %s", timeout)
		if errors.Is(ctx.Err(), context.Canceled) {
			msg = "hook cancelled"
		}
		// The note goes on the stream Output reports.
		if strings.TrimSpace(result.Stdout) != "" {
			result.Stdout = appendLine(result.Stdout, msg)
		} else {
			result.Stderr = appendLine(result.Stderr, msg)
		}
	}

	addOutputEvents(span, result.Stdout, result.Stderr)
	span.SetAttributes(attribute.Int("hook.exit_code", result.ExitCode))
	if result.ExitCode != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", result.ExitCode))
	}

	if result.ExitCode == 0 {
		e.recordSuccess(hook, files, opts.Cwd)
	}
	e.cfg.Events.LogHookResult(result, opts.EventType, runID)

	log.WithFields(logrus.Fields{
		"hook":      hook.ID(),
		"exit_code": result.ExitCode,
		"duration":  result.Duration,
	}).Debug("Hook finished")
	return result
}

// RunMany runs every hook against the same files concurrently. Results are
// in input order.
func (e *Executor) RunMany(ctx context.Context, hooks []models.HookDefinition, files []string, opts Options) []models.HookResult {
	tasks := make([]Task, len(hooks))
	for i, h := range hooks {
		tasks[i] = Task{Hook: h, Files: files}
	}
	return e.RunTasks(ctx, tasks, opts)
}

// RunTasks runs each task concurrently and waits for all of them. One task
// failing or panicking never affects the others.
func (e *Executor) RunTasks(ctx context.Context, tasks []Task, opts Options) []models.HookResult {
	results := make([]models.HookResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	var g errgroup.Group
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("hook", task.Hook.ID()).Errorf("Hook execution panicked: %v", r)
					results[i] = models.HookResult{
						Hook:     task.Hook,
						Files:    task.Files,
						ExitCode: models.ExitCodeInternal,
						Stderr:   fmt.Sprintf("internal error running hook: %v", r),
					}
				}
			}()
			results[i] = e.RunOne(ctx, task.Hook, task.Files, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) timeoutFor(hook models.HookDefinition, opts Options) time.Duration {
	switch {
	case hook.Timeout > 0:
		return hook.Timeout
	case opts.Timeout > 0:
		return opts.Timeout
	default:
		return e.cfg.DefaultTimeout
	}
}

func (e *Executor) allCached(hook models.HookDefinition, files []string, cwd string) bool {
	if e.cfg.Cache == nil || len(files) == 0 {
		return false
	}
	for _, f := range files {
		if !e.cfg.Cache.ShouldSkip(hook.PluginName, hook.Name, absPath(cwd, f)) {
			return false
		}
	}
	return true
}

func (e *Executor) recordSuccess(hook models.HookDefinition, files []string, cwd string) {
	if e.cfg.Cache == nil || len(files) == 0 {
		return
	}
	hashes := make(map[string]string, len(files))
	for _, f := range files {
		if h := e.cfg.Cache.RecordSuccess(hook.PluginName, hook.Name, absPath(cwd, f)); h != "" {
			hashes[f] = h
		}
	}
	if len(hashes) > 0 {
		e.cfg.Events.LogValidationCache(hook, hashes)
	}
}

func appendLine(s, line string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}

func absPath(cwd, file string) string {
	if filepath.IsAbs(file) || cwd == "" {
		return filepath.Clean(file)
	}
	return filepath.Join(cwd, file)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		if cmd.ProcessState != nil {
			return normalizeExit(cmd.ProcessState.ExitCode())
		}
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return normalizeExit(exitErr.ExitCode())
	}
	return models.ExitCodeInternal
}

// normalizeExit keeps signal deaths, reported as -1, from colliding with the
// spawn failure code.
func normalizeExit(code int) int {
	if code < 0 {
		return 1
	}
	return code
}

func addOutputEvents(span trace.Span, stdout, stderr string) {
	if stdout != "" {
		span.AddEvent("hook.stdout", trace.WithAttributes(
			attribute.String("output", eventlog.TruncateOutput(stdout, maxSpanOutput)),
			attribute.Int("bytes", len(stdout)),
		))
	}
	if stderr != "" {
		span.AddEvent("hook.stderr", trace.WithAttributes(
			attribute.String("output", eventlog.TruncateOutput(stderr, maxSpanOutput)),
			attribute.Int("bytes", len(stderr)),
		))
	}
}
