package commands

import (
	"fmt"

	"github.com/mattsolo1/han-bridge/config"
	"github.com/mattsolo1/han-bridge/internal/cache"
	bridgeconfig "github.com/mattsolo1/han-bridge/internal/config"
	"github.com/mattsolo1/han-bridge/internal/discovery"
	"github.com/mattsolo1/han-bridge/internal/eventlog"
	"github.com/mattsolo1/han-bridge/internal/executor"
	"github.com/mattsolo1/han-bridge/internal/hooks"
	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/storage/disk"
	"github.com/mattsolo1/han-bridge/internal/storage/interfaces"
)

// sessionFactory builds bridges that share one validation cache, history
// store and notifier.
type sessionFactory struct {
	cfg      *config.Config
	cache    *cache.Cache
	history  interfaces.ExecutionStorer
	notifier hooks.Notifier
	discover func(projectDir string) []models.HookDefinition
}

func newSessionFactory(cfg *config.Config, notifier hooks.Notifier) (*sessionFactory, error) {
	f := &sessionFactory{
		cfg:      cfg,
		cache:    cache.New(),
		notifier: notifier,
		discover: discovery.DiscoverHooks,
	}
	if cfg.History.Enabled {
		store, err := disk.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		f.history = store
	}
	return f, nil
}

func (f *sessionFactory) newExecutor(events *eventlog.Logger) *executor.Executor {
	return executor.New(executor.Config{
		Cache:           f.cache,
		Events:          events,
		DefaultTimeout:  f.cfg.DefaultTimeout,
		MaxConcurrency:  f.cfg.MaxConcurrency,
		RunWithoutFiles: f.cfg.NoFilesPolicy == bridgeconfig.NoFilesRun,
	})
}

// newEventLog returns nil, which discards records, when the event log is
// disabled or the session is anonymous.
func (f *sessionFactory) newEventLog(projectDir, sessionID string) *eventlog.Logger {
	if !f.cfg.EventLog.Enabled || sessionID == "" {
		return nil
	}
	return eventlog.New(eventlog.Config{
		Root:       f.cfg.EventLog.Root,
		Provider:   f.cfg.Provider,
		SessionID:  sessionID,
		ProjectDir: projectDir,
		Debounce:   f.cfg.EventLog.Debounce,
		MaxOutput:  f.cfg.EventLog.MaxOutput,
	})
}

func (f *sessionFactory) newBridge(projectDir, sessionID string) *hooks.Bridge {
	defs := f.discover(projectDir)
	if defs == nil {
		defs = []models.HookDefinition{}
	}
	events := f.newEventLog(projectDir, sessionID)
	return hooks.NewBridge(hooks.BridgeOptions{
		ProjectDir: projectDir,
		SessionID:  sessionID,
		Provider:   f.cfg.Provider,
		Executor:   f.newExecutor(events),
		Events:     events,
		History:    f.history,
		Notifier:   f.notifier,
		Hooks:      defs,
	})
}

func (f *sessionFactory) Close() error {
	if f.history != nil {
		return f.history.Close()
	}
	return nil
}
