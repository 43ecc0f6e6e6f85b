package slogx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, "json", &buf).Info("entity done", "code", "sz.000001", "rows", 3)
	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "entity done", m["msg"])
	assert.Equal(t, "sz.000001", m["code"])
}

func TestChanLoggerSplitsLines(t *testing.T) {
	ch := make(chan string, 1)
	w := &ChanWriter{Ch: ch}
	logger := New(slog.LevelDebug, "text", w)
	logger.Debug("first")
	logger.Info("second")

	line := <-ch
	assert.Contains(t, line, "msg=first")
	assert.Equal(t, 1, w.Dropped, "full channel drops instead of blocking")
	assert.Empty(t, w.Buf)
}
