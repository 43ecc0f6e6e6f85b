package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

func runLogWriter(w io.Writer, lines <-chan string) {
	for s := range lines {
		fmt.Fprintln(w, s)
	}
}

// tally is the collector's running state; the heartbeat reads it under mu.
type tally struct {
	mu        sync.Mutex
	processed int
	dropped   int
	rows      int64
}

func (t *tally) snapshot() (processed, dropped int, rows int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed, t.dropped, t.rows
}

func runHeartbeat(ctx context.Context, interval time.Duration, total int, t *tally, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p, d, rows := t.snapshot()
			logger.Info("heartbeat", "done", p+d, "total", total, "processed", p, "dropped", d, "rows", rows)
		}
	}
}
