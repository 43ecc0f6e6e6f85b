package writer

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
)

// Accumulator buffers rows of one record kind for at most capacity entities.
// Reaching the bound flushes the buffer, sorted by (code, date), as one
// immutable chunk file. Add is safe for concurrent use.
type Accumulator[T any, P Record[T]] struct {
	mu       sync.Mutex
	dir      string
	kind     string
	runID    string
	capacity int
	logger   *slog.Logger

	rows     []T
	entities map[string]struct{}
	seq      int
	chunks   []string
	written  int64
	closed   bool
}

// NewAccumulator creates an accumulator writing chunks into dir.
func NewAccumulator[T any, P Record[T]](dir, kind, runID string, capacity int, logger *slog.Logger) *Accumulator[T, P] {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator[T, P]{
		dir:      dir,
		kind:     kind,
		runID:    runID,
		capacity: capacity,
		logger:   logger,
		entities: make(map[string]struct{}, capacity),
	}
}

// Kind returns the record kind name.
func (a *Accumulator[T, P]) Kind() string { return a.kind }

// Add buffers the rows of one entity. A flush triggered by this call runs
// synchronously and its error is returned to the caller.
func (a *Accumulator[T, P]) Add(code string, rows []T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s accumulator closed", a.kind)
	}
	if len(rows) == 0 {
		return nil
	}
	a.rows = append(a.rows, rows...)
	a.entities[code] = struct{}{}
	if len(a.entities) >= a.capacity {
		return a.flush()
	}
	return nil
}

// Entities returns the number of entities currently buffered.
func (a *Accumulator[T, P]) Entities() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entities)
}

// Chunks returns the chunk files flushed so far.
func (a *Accumulator[T, P]) Chunks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.chunks)
}

// Rows returns the number of rows flushed so far.
func (a *Accumulator[T, P]) Rows() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

// Close flushes what is left. Further Adds fail.
func (a *Accumulator[T, P]) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.flush()
}

func (a *Accumulator[T, P]) flush() error {
	if len(a.rows) == 0 {
		return nil
	}
	slices.SortStableFunc(a.rows, func(x, y T) int {
		switch {
		case less[T, P](&x, &y):
			return -1
		case less[T, P](&y, &x):
			return 1
		}
		return 0
	})
	path := filepath.Join(a.dir, fmt.Sprintf("%s-%s-%05d.parquet", a.kind, a.runID, a.seq))
	if err := WriteFile(path, a.rows); err != nil {
		return fmt.Errorf("flush %s chunk %d: %w", a.kind, a.seq, err)
	}
	a.logger.Debug("chunk flushed", "kind", a.kind, "path", path, "rows", len(a.rows), "entities", len(a.entities))
	a.seq++
	a.chunks = append(a.chunks, path)
	a.written += int64(len(a.rows))
	a.rows = nil
	clear(a.entities)
	return nil
}
