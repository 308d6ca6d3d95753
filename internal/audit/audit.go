// Package audit appends tool execution outcomes to a local SQLite log.
// Writes are fire-and-forget: the call path never blocks on, or fails
// because of, the audit trail.
package audit

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Record is one tool invocation outcome.
type Record struct {
	RequestID  string
	Tool       string
	Action     string
	Role       string
	Instance   string
	OK         bool
	ErrorKind  string
	DurationMS int64
	ExecutedAt time.Time
}

// Writer receives execution records.
type Writer interface {
	Write(rec *Record)
	Close() error
}

// NewNop returns a writer that discards everything. Used when no audit
// path is configured.
func NewNop() Writer { return nopWriter{} }

type nopWriter struct{}

func (nopWriter) Write(*Record) {}
func (nopWriter) Close() error  { return nil }

// SQLiteWriter buffers records through a channel into a SQLite table. A
// full buffer drops records rather than backpressuring tool calls.
type SQLiteWriter struct {
	db     *sql.DB
	ch     chan *Record
	done   chan struct{}
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS tool_executions (
	request_id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	action TEXT,
	role TEXT NOT NULL,
	instance TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error_kind TEXT,
	duration_ms INTEGER NOT NULL,
	executed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_tool ON tool_executions(tool);
CREATE INDEX IF NOT EXISTS idx_tool_executions_executed_at ON tool_executions(executed_at);
`

// NewSQLite opens (or creates) the audit database at path.
func NewSQLite(path string, logger *zap.Logger) (*SQLiteWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	w := &SQLiteWriter{
		db:     db,
		ch:     make(chan *Record, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.run()
	return w, nil
}

// Write enqueues a record without blocking.
func (w *SQLiteWriter) Write(rec *Record) {
	select {
	case w.ch <- rec:
	default:
		w.logger.Warn("audit buffer full, dropping record", zap.String("tool", rec.Tool))
	}
}

// Close drains pending records and closes the database.
func (w *SQLiteWriter) Close() error {
	close(w.ch)
	<-w.done
	return w.db.Close()
}

func (w *SQLiteWriter) run() {
	defer close(w.done)
	for rec := range w.ch {
		_, err := w.db.Exec(`
			INSERT OR REPLACE INTO tool_executions
				(request_id, tool, action, role, instance, ok, error_kind, duration_ms, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.RequestID, rec.Tool, rec.Action, rec.Role, rec.Instance,
			boolToInt(rec.OK), rec.ErrorKind, rec.DurationMS, rec.ExecutedAt)
		if err != nil {
			w.logger.Warn("audit write failed", zap.String("tool", rec.Tool), zap.Error(err))
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
