package disk

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mattsolo1/han-bridge/internal/models"
	"github.com/mattsolo1/han-bridge/internal/storage/interfaces"
)

const defaultListLimit = 50

// SQLiteStore implements ExecutionStorer using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Create directory if needed
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serve mode records from several goroutines; one connection avoids
	// SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

var _ interfaces.ExecutionStorer = (*SQLiteStore)(nil)

// migrate creates the necessary tables if they don't exist
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hook_executions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		hook_run_id TEXT,
		plugin TEXT NOT NULL,
		hook TEXT NOT NULL,
		event TEXT NOT NULL,
		directory TEXT,
		command TEXT,
		exit_code INTEGER NOT NULL,
		passed BOOLEAN NOT NULL,
		duration_ms INTEGER,
		output TEXT,
		error TEXT,
		executed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_hook_executions_session_id ON hook_executions(session_id);
	CREATE INDEX IF NOT EXISTS idx_hook_executions_executed_at ON hook_executions(executed_at);
	CREATE INDEX IF NOT EXISTS idx_hook_executions_plugin ON hook_executions(plugin);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordExecution inserts one execution, replacing any row with the same id.
func (s *SQLiteStore) RecordExecution(exec *models.HookExecution) error {
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}

	query := `
	INSERT OR REPLACE INTO hook_executions (
		id, session_id, hook_run_id, plugin, hook, event, directory, command,
		exit_code, passed, duration_ms, output, error, executed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		exec.ID, exec.SessionID, exec.HookRunID, exec.Plugin, exec.Hook, exec.Event,
		exec.Directory, exec.Command, exec.ExitCode, exec.Passed, exec.DurationMs,
		exec.Output, exec.Error, exec.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// ListExecutions returns executions matching filter, newest first.
func (s *SQLiteStore) ListExecutions(filter interfaces.ExecutionFilter) ([]*models.HookExecution, error) {
	var where []string
	var args []interface{}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.Plugin != "" {
		where = append(where, "plugin = ?")
		args = append(args, filter.Plugin)
	}
	if filter.FailedOnly {
		where = append(where, "passed = 0")
	}

	query := `
	SELECT id, session_id, COALESCE(hook_run_id, ''), plugin, hook, event,
		COALESCE(directory, ''), COALESCE(command, ''), exit_code, passed,
		COALESCE(duration_ms, 0), COALESCE(output, ''), COALESCE(error, ''), executed_at
	FROM hook_executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY executed_at DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []*models.HookExecution
	for rows.Next() {
		var e models.HookExecution
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.HookRunID, &e.Plugin, &e.Hook, &e.Event,
			&e.Directory, &e.Command, &e.ExitCode, &e.Passed,
			&e.DurationMs, &e.Output, &e.Error, &e.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListSessions summarizes recorded sessions, most recently active first.
func (s *SQLiteStore) ListSessions(limit int) ([]*interfaces.SessionSummary, error) {
	query := `
	SELECT session_id, COUNT(*), SUM(CASE WHEN passed = 0 THEN 1 ELSE 0 END),
		MIN(executed_at), MAX(executed_at)
	FROM hook_executions
	GROUP BY session_id
	ORDER BY MAX(executed_at) DESC
	LIMIT ?
	`

	rows, err := s.db.Query(query, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []*interfaces.SessionSummary
	for rows.Next() {
		var sum interfaces.SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.Executions, &sum.Failures, &sum.FirstRun, &sum.LastRun); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

// Prune deletes executions recorded before cutoff and returns how many
// rows were removed.
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM hook_executions WHERE executed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
