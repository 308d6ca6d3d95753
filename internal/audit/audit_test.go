package audit

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	w, err := NewSQLite(path, nil)
	require.NoError(t, err)

	executed := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	w.Write(&Record{
		RequestID:  "req-1",
		Tool:       "snow_create_incident",
		Role:       "developer",
		Instance:   "dev",
		OK:         true,
		DurationMS: 42,
		ExecutedAt: executed,
	})
	w.Write(&Record{
		RequestID:  "req-2",
		Tool:       "pa_create",
		Action:     "threshold",
		Role:       "developer",
		Instance:   "dev",
		OK:         false,
		ErrorKind:  "missing_parameter",
		DurationMS: 1,
		ExecutedAt: executed,
	})
	require.NoError(t, w.Close(), "close drains the buffer")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tool_executions`).Scan(&count))
	assert.Equal(t, 2, count)

	var tool, action, errorKind string
	var ok int
	require.NoError(t, db.QueryRow(`
		SELECT tool, action, ok, error_kind FROM tool_executions WHERE request_id = ?
	`, "req-2").Scan(&tool, &action, &ok, &errorKind))
	assert.Equal(t, "pa_create", tool)
	assert.Equal(t, "threshold", action)
	assert.Equal(t, 0, ok)
	assert.Equal(t, "missing_parameter", errorKind)
}

func TestNopWriter(t *testing.T) {
	w := NewNop()
	w.Write(&Record{RequestID: "x", Tool: "t"})
	assert.NoError(t, w.Close())
}
