package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMessage(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n"
	tr := NewTransport(strings.NewReader(input), io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "tools/list", req.Method)
	assert.False(t, req.IsNotification())

	note, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.True(t, note.IsNotification())

	_, err = tr.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageMalformed(t *testing.T) {
	tr := NewTransport(strings.NewReader("not json\n"), io.Discard)
	_, err := tr.ReadMessage()
	assert.Error(t, err)
}

func TestWriteResponseOnePerLine(t *testing.T) {
	var out bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &out)

	resp, err := NewResponse(json.RawMessage("1"), map[string]any{"ok": true})
	require.NoError(t, err)
	require.NoError(t, tr.WriteResponse(resp))
	require.NoError(t, tr.WriteResponse(NewErrorResponse(json.RawMessage("2"), MethodNotFound, "nope")))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var parsed Response
		assert.NoError(t, json.Unmarshal([]byte(line), &parsed))
	}
}

// Concurrent writers must not interleave within a line.
func TestWriteResponseConcurrent(t *testing.T) {
	var out bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &out)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _ := NewResponse(json.RawMessage("0"), strings.Repeat("x", 512))
			_ = tr.WriteResponse(resp)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 32)
	for _, line := range lines {
		var parsed Response
		assert.NoError(t, json.Unmarshal([]byte(line), &parsed), "line must be intact JSON")
	}
}
