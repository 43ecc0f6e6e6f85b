package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cn-data/internal/model"
	"cn-data/internal/schema"
	"cn-data/internal/shard"
	"cn-data/internal/source"
)

// ColdReader reads one slice of the cold archive.
type ColdReader interface {
	ReadCold(slice source.ColdSlice) ([]schema.DailyRecord, error)
}

// ShardError is a shard that could not be read and was skipped.
type ShardError struct {
	Path string
	Err  error
}

func (e ShardError) Error() string { return fmt.Sprintf("shard %s: %v", e.Path, e.Err) }

func (e ShardError) Unwrap() error { return e.Err }

// Result is the reconciled series of one entity.
type Result struct {
	Code        string
	Bars        []model.Bar
	Skipped     []ShardError
	FieldErrors int // values replaced by missing during conformance
	BadRows     int // rows without a usable date
	Empty       bool
}

// Reconciler merges an entity's cold, increment and fund-flow shards into one
// ordered, deduplicated series.
type Reconciler struct {
	cold   ColdReader
	load   func(path string) ([]schema.RawRow, error)
	logger *slog.Logger
}

// New creates a Reconciler. A nil logger uses slog.Default().
func New(cold ColdReader, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{cold: cold, load: shard.Load, logger: logger}
}

// series keeps one bar per date; a later put replaces the earlier row.
type series struct {
	index map[time.Time]int
	bars  []model.Bar
}

func (s *series) put(b model.Bar) {
	if i, ok := s.index[b.Date]; ok {
		old := s.bars[i]
		// price shards never carry flows; keep what the older row knew
		mergeFlow(&b.Flow, &old.Flow)
		s.bars[i] = b
		return
	}
	s.index[b.Date] = len(s.bars)
	s.bars = append(s.bars, b)
}

// Reconcile loads src in order (cold slices, then increments, then flows) and
// returns the merged series. Unreadable shards are skipped, not fatal.
func (r *Reconciler) Reconcile(ctx context.Context, src source.Sources) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := Result{Code: src.Code}
	s := &series{index: make(map[time.Time]int)}

	for _, slice := range src.Cold {
		if r.cold == nil {
			break
		}
		recs, err := r.cold.ReadCold(slice)
		if err != nil {
			r.skip(&res, fmt.Sprintf("%s@%d", slice.File, slice.Offset), err)
			continue
		}
		for i := range recs {
			if recs[i].Code != src.Code {
				continue
			}
			b, err := schema.FromDailyRecord(&recs[i])
			if err != nil {
				res.BadRows++
				continue
			}
			s.put(b)
		}
	}

	for _, p := range src.Increment {
		bars, ok := r.loadBars(&res, p)
		if !ok {
			continue
		}
		for _, b := range bars {
			s.put(b)
		}
	}

	if len(s.bars) == 0 {
		res.Empty = true
		return res, nil
	}

	flows := make(map[time.Time]model.Flow)
	for _, p := range src.Flow {
		bars, ok := r.loadBars(&res, p)
		if !ok {
			continue
		}
		for _, b := range bars {
			f := b.Flow
			if prev, seen := flows[b.Date]; seen {
				mergeFlow(&f, &prev)
			}
			flows[b.Date] = f
		}
	}
	for i := range s.bars {
		if f, ok := flows[s.bars[i].Date]; ok {
			mergeFlow(&f, &s.bars[i].Flow)
			s.bars[i].Flow = f
		}
	}

	sort.Slice(s.bars, func(i, j int) bool { return s.bars[i].Date.Before(s.bars[j].Date) })
	Normalize(s.bars)
	res.Bars = s.bars
	return res, nil
}

func (r *Reconciler) loadBars(res *Result, path string) ([]model.Bar, bool) {
	rows, err := r.load(path)
	if err != nil {
		r.skip(res, path, err)
		return nil, false
	}
	bars := make([]model.Bar, 0, len(rows))
	for _, raw := range rows {
		b, ferrs, err := schema.ConformDaily(raw, res.Code)
		if err != nil {
			res.BadRows++
			continue
		}
		res.FieldErrors += len(ferrs)
		if b.Code != res.Code {
			continue
		}
		bars = append(bars, b)
	}
	return bars, true
}

func (r *Reconciler) skip(res *Result, path string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	res.Skipped = append(res.Skipped, ShardError{Path: path, Err: err})
	r.logger.Warn("shard skipped", "code", res.Code, "path", path, "error", err)
}

// mergeFlow fills dst's missing tranches from fallback: dst keeps priority,
// fallback only fills holes.
func mergeFlow(dst, fallback *model.Flow) {
	d, f := dst.Refs(), fallback.Refs()
	for i := range d {
		if model.IsMissing(*d[i]) {
			*d[i] = *f[i]
		}
	}
}
