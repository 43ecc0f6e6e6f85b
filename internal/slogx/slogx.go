package slogx

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ChanWriter buffers writes and sends complete lines to a channel, so many
// worker goroutines can log through one writer goroutine.
type ChanWriter struct {
	Ch  chan<- string
	Buf []byte

	mu      sync.Mutex
	Dropped int
}

func (w *ChanWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Buf = append(w.Buf, p...)
	for {
		i := bytes.IndexByte(w.Buf, '\n')
		if i < 0 {
			break
		}
		line := string(w.Buf[:i])
		w.Buf = w.Buf[i+1:]
		select {
		case w.Ch <- line:
		default:
			w.Dropped++ // channel full
		}
	}
	return len(p), nil
}

// NewChanLogger creates a logger that sends formatted lines to ch.
func NewChanLogger(ch chan<- string, level slog.Level, format string) *slog.Logger {
	return New(level, format, &ChanWriter{Ch: ch})
}

// Default logger for direct use (writes to stderr, level info).
var Default = New(slog.LevelInfo, "text", os.Stderr)

// ParseLevel converts string (debug|info|warn|error) to slog.Level. Unknown → info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger writing to w. format is "json" or "text" (default).
func New(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewDefault creates a text logger writing to stderr with the given level string.
func NewDefault(level string) *slog.Logger {
	return New(ParseLevel(level), "text", os.Stderr)
}
