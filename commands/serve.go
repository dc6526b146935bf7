package commands

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mattsolo1/han-bridge/internal/hooks"
	"github.com/mattsolo1/han-bridge/internal/matcher"
	"github.com/mattsolo1/han-bridge/internal/watch"
)

// clearCacheEvent is a control line that empties the validation cache.
const clearCacheEvent = "clear_cache"

const maxEventLine = 4 * 1024 * 1024

func newServeCmd() *cobra.Command {
	var watchFiles bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Handle a stream of host events from stdin",
		Long: `Read newline-delimited host events from stdin and handle each one as it
arrives. Validation messages are written to stdout as newline-delimited JSON.
The validation cache lives for the whole stream and is shared by every session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := currentConfig()
			factory, err := newSessionFactory(cfg, hooks.NewStreamNotifier(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			srv := newServer(factory)
			defer srv.Close()

			ctx := cmd.Context()
			if watchFiles || cfg.Watch.Enabled {
				root := resolveProject("")
				w := watch.New(root, cfg.Watch.Ignore, srv.fileChanged)
				watchCtx, cancel := context.WithCancel(ctx)
				if err := w.Start(watchCtx); err != nil {
					cancel()
					return fmt.Errorf("failed to watch %s: %w", root, err)
				}
				defer func() {
					cancel()
					<-w.Done()
				}()
			}

			return srv.Serve(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().BoolVar(&watchFiles, "watch", false, "Invalidate cached validations when files change on disk")

	return cmd
}

// server routes streamed host events to one bridge per session.
type server struct {
	factory *sessionFactory

	mu      sync.Mutex
	bridges map[string]*hooks.Bridge

	wg sync.WaitGroup
}

func newServer(factory *sessionFactory) *server {
	return &server{
		factory: factory,
		bridges: make(map[string]*hooks.Bridge),
	}
}

// Serve handles events from r until EOF, then waits for every batch still
// running.
func (s *server) Serve(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		hc, err := hooks.NewHookContext(bytes.NewReader(bytes.Clone(line)))
		if err != nil {
			log.WithError(err).Warn("Skipping malformed event")
			continue
		}
		s.handle(ctx, hc)
	}

	s.wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	return nil
}

func (s *server) handle(ctx context.Context, hc *hooks.HookContext) {
	event := hc.Input.HookEventName
	if event == clearCacheEvent {
		s.factory.cache.Clear()
		log.Debug("Validation cache cleared")
		return
	}
	if _, ok := normalizeEvent(event); !ok {
		log.WithField("event", event).Warn("Ignoring unsupported event")
		return
	}

	bridge := s.bridgeFor(hc)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out, err := dispatch(ctx, bridge, event, hc)
		if err != nil {
			log.WithError(err).WithField("event", event).Warn("Failed to handle event")
			return
		}
		log.WithFields(logrus.Fields{
			"event":      out.Event,
			"session_id": hc.Input.SessionID,
			"hooks":      len(out.Results),
			"failed":     out.Failed(),
		}).Debug("Event handled")
	}()
}

func (s *server) bridgeFor(hc *hooks.HookContext) *hooks.Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hc.Input.SessionID
	if b, ok := s.bridges[id]; ok {
		return b
	}
	b := s.factory.newBridge(resolveProject(hc.Input.Cwd), id)
	s.bridges[id] = b
	return b
}

// fileChanged reports an out-of-band edit to every session whose project
// contains path.
func (s *server) fileChanged(path string) {
	s.factory.cache.Invalidate(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		if _, ok := matcher.RelativeTo(b.ProjectDir(), path); ok {
			b.RecordFileChange(hooks.FilesystemTool, path)
		}
	}
}

// Close flushes every session's event log and releases the history store.
func (s *server) Close() error {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bridges {
		if err := b.Close(); err != nil {
			log.WithError(err).WithField("session_id", id).Warn("Failed to flush event log")
		}
	}
	return s.factory.Close()
}

