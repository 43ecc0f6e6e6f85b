package writer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"cn-data/internal/schema"
)

// ErrNoChunks is returned when a kind has nothing to compact.
var ErrNoChunks = errors.New("no chunks to compact")

const sinkBatch = 1024

// Layout locates compaction outputs.
type Layout struct {
	OutputDir string
	CacheDir  string
	Year      int // processing year; earlier years are archive partitions
}

// DailyPath returns the daily partition file of year.
func (l Layout) DailyPath(year int) string {
	return filepath.Join(l.OutputDir, "stock_daily", fmt.Sprintf("stock_%d.parquet", year))
}

// CachePath returns the cold-cache copy of the daily partition of year.
func (l Layout) CachePath(year int) string {
	return filepath.Join(l.CacheDir, fmt.Sprintf("stock_%d.parquet", year))
}

// Summary describes one compaction.
type Summary struct {
	Files      map[string]int64 // output path -> rows written
	Kept       []string         // archive partitions left untouched
	Cached     []string
	Discarded  int64 // rows of archive years that already existed
	Duplicates int64
}

func newSummary() Summary { return Summary{Files: make(map[string]int64)} }

// Compactor merges chunk files into the final partitioned outputs.
type Compactor struct {
	layout Layout
	logger *slog.Logger
}

// NewCompactor creates a Compactor. A nil logger uses slog.Default().
func NewCompactor(layout Layout, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{layout: layout, logger: logger}
}

// Layout returns the output layout.
func (c *Compactor) Layout() Layout { return c.layout }

// batched buffers rows for a sink.
type batched struct {
	s   *sink[schema.DailyRecord]
	buf []schema.DailyRecord
}

func (b *batched) add(row *schema.DailyRecord) error {
	b.buf = append(b.buf, *row)
	if len(b.buf) < sinkBatch {
		return nil
	}
	return b.drain()
}

func (b *batched) drain() error {
	if len(b.buf) == 0 {
		return nil
	}
	err := b.s.Write(b.buf)
	b.buf = b.buf[:0]
	return err
}

// Daily merges daily chunks into per-year partitions. Archive years that
// already have a file are left as they are and their rows discarded; the hot
// partition (the processing year and anything later) is always rewritten.
// The hot file and newly written archives are copied into the cache dir.
func (c *Compactor) Daily(chunks []string) (Summary, error) {
	sum := newSummary()
	if len(chunks) == 0 {
		return sum, ErrNoChunks
	}

	parts := make(map[int]*batched)
	kept := make(map[int]bool)
	abort := func() {
		for _, p := range parts {
			p.s.Abort()
		}
	}

	dups, err := merge[schema.DailyRecord](chunks, func(row *schema.DailyRecord) error {
		year, err := recordYear(row.Date)
		if err != nil {
			return fmt.Errorf("row %s/%s: %w", row.Code, row.Date, err)
		}
		if year > c.layout.Year {
			year = c.layout.Year
		}
		if kept[year] {
			sum.Discarded++
			return nil
		}
		p, ok := parts[year]
		if !ok {
			path := c.layout.DailyPath(year)
			if year < c.layout.Year {
				if _, err := os.Stat(path); err == nil {
					kept[year] = true
					sum.Kept = append(sum.Kept, path)
					sum.Discarded++
					return nil
				}
			}
			s, err := createSink[schema.DailyRecord](path)
			if err != nil {
				return err
			}
			p = &batched{s: s}
			parts[year] = p
		}
		return p.add(row)
	})
	sum.Duplicates = dups
	if err != nil {
		abort()
		return sum, fmt.Errorf("compact daily: %w", err)
	}

	years := make([]int, 0, len(parts))
	for y := range parts {
		years = append(years, y)
	}
	sort.Ints(years)
	for i, y := range years {
		p := parts[y]
		if err := p.drain(); err != nil {
			for _, rest := range years[i:] {
				parts[rest].s.Abort()
			}
			return sum, fmt.Errorf("compact daily %d: %w", y, err)
		}
		if err := p.s.Commit(); err != nil {
			for _, rest := range years[i+1:] {
				parts[rest].s.Abort()
			}
			return sum, fmt.Errorf("commit daily %d: %w", y, err)
		}
		sum.Files[p.s.path] = p.s.rows
		c.logger.Info("partition written", "year", y, "path", p.s.path, "rows", p.s.rows)
	}

	if c.layout.CacheDir == "" {
		return sum, nil
	}
	for _, y := range years {
		dst := c.layout.CachePath(y)
		if err := copyFile(c.layout.DailyPath(y), dst); err != nil {
			return sum, fmt.Errorf("cache partition %d: %w", y, err)
		}
		sum.Cached = append(sum.Cached, dst)
	}
	return sum, nil
}

// Table merges the chunks of a coarse kind into one rewritten file.
func (c *Compactor) Table(chunks []string, name string) (Summary, error) {
	sum := newSummary()
	if len(chunks) == 0 {
		return sum, ErrNoChunks
	}
	path := filepath.Join(c.layout.OutputDir, name)
	s, err := createSink[schema.DailyRecord](path)
	if err != nil {
		return sum, err
	}
	out := &batched{s: s}
	dups, err := merge[schema.DailyRecord](chunks, out.add)
	sum.Duplicates = dups
	if err == nil {
		err = out.drain()
	}
	if err != nil {
		s.Abort()
		return sum, fmt.Errorf("compact %s: %w", name, err)
	}
	if err := s.Commit(); err != nil {
		return sum, fmt.Errorf("commit %s: %w", name, err)
	}
	sum.Files[path] = s.rows
	c.logger.Info("table written", "path", path, "rows", s.rows)
	return sum, nil
}

// Cleanup removes chunk files once their outputs are committed.
func Cleanup(chunks []string) error {
	var errs []error
	for _, p := range chunks {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordYear(date string) (int, error) {
	if len(date) < 4 {
		return 0, fmt.Errorf("bad date %q", date)
	}
	return strconv.Atoi(date[:4])
}
