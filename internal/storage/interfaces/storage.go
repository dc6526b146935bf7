package interfaces

import (
	"time"

	"github.com/mattsolo1/han-bridge/internal/models"
)

// ExecutionFilter narrows a history query. Zero values match everything.
type ExecutionFilter struct {
	SessionID  string
	Plugin     string
	FailedOnly bool
	Limit      int
}

// SessionSummary aggregates the executions recorded for one session.
type SessionSummary struct {
	SessionID  string
	Executions int
	Failures   int
	FirstRun   string
	LastRun    string
}

// ExecutionStorer defines the interface for hook execution history.
type ExecutionStorer interface {
	RecordExecution(exec *models.HookExecution) error
	ListExecutions(filter ExecutionFilter) ([]*models.HookExecution, error)
	ListSessions(limit int) ([]*SessionSummary, error)
	Prune(cutoff time.Time) (int64, error)
	Close() error
}
