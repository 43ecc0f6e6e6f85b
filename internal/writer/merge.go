package writer

import (
	"container/heap"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
)

const cursorBatch = 512

// cursor streams one sorted chunk.
type cursor[T any] struct {
	path string
	f    *os.File
	r    *parquet.GenericReader[T]
	buf  []T
	pos  int
	eof  bool
}

func openCursor[T any](path string) (*cursor[T], error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	return &cursor[T]{path: path, f: f, r: parquet.NewGenericReader[T](pf)}, nil
}

// head returns the current row, refilling from the file when needed. It
// returns nil once the chunk is exhausted.
func (c *cursor[T]) head() (*T, error) {
	for c.pos >= len(c.buf) {
		if c.eof {
			return nil, nil
		}
		// a new buffer each time: rows already handed out must stay intact
		c.buf = make([]T, cursorBatch)
		n, err := c.r.Read(c.buf)
		c.buf, c.pos = c.buf[:n], 0
		if errors.Is(err, io.EOF) {
			c.eof = true
		} else if err != nil {
			return nil, fmt.Errorf("read chunk %s: %w", c.path, err)
		}
	}
	return &c.buf[c.pos], nil
}

func (c *cursor[T]) close() error {
	c.r.Close()
	return c.f.Close()
}

type cursorHeap[T any, P Record[T]] struct {
	items []*cursor[T]
	heads []*T
}

func (h *cursorHeap[T, P]) Len() int { return len(h.items) }

func (h *cursorHeap[T, P]) Less(i, j int) bool {
	if less[T, P](h.heads[i], h.heads[j]) {
		return true
	}
	if less[T, P](h.heads[j], h.heads[i]) {
		return false
	}
	// equal keys: the earlier chunk wins
	return h.items[i].path < h.items[j].path
}

func (h *cursorHeap[T, P]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.heads[i], h.heads[j] = h.heads[j], h.heads[i]
}

func (h *cursorHeap[T, P]) Push(x any) {
	c := x.(*cursor[T])
	h.items = append(h.items, c)
	h.heads = append(h.heads, nil)
}

func (h *cursorHeap[T, P]) Pop() any {
	n := len(h.items) - 1
	c := h.items[n]
	h.items, h.heads = h.items[:n], h.heads[:n]
	return c
}

// merge streams the rows of every chunk to emit in (code, date) order. Rows
// repeating the previous key are dropped and counted.
func merge[T any, P Record[T]](chunks []string, emit func(row *T) error) (dups int64, err error) {
	h := &cursorHeap[T, P]{}
	defer func() {
		for _, c := range h.items {
			c.close()
		}
	}()
	for _, path := range chunks {
		c, err := openCursor[T](path)
		if err != nil {
			return 0, err
		}
		row, err := c.head()
		if err != nil {
			c.close()
			return 0, err
		}
		if row == nil {
			c.close()
			continue
		}
		h.items = append(h.items, c)
		h.heads = append(h.heads, row)
	}
	heap.Init(h)

	var prevCode, prevDate string
	started := false
	for h.Len() > 0 {
		row := h.heads[0]
		code, date := P(row).RecordKey()
		if started && code == prevCode && date == prevDate {
			dups++
		} else {
			if err := emit(row); err != nil {
				return dups, err
			}
			prevCode, prevDate, started = code, date, true
		}

		top := h.items[0]
		top.pos++
		next, err := top.head()
		if err != nil {
			return dups, err
		}
		if next == nil {
			top.close()
			heap.Pop(h)
			continue
		}
		h.heads[0] = next
		heap.Fix(h, 0)
	}
	return dups, nil
}
