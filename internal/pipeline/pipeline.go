package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"cn-data/internal/indicator"
	"cn-data/internal/metrics"
	"cn-data/internal/model"
	"cn-data/internal/reconcile"
	"cn-data/internal/resample"
	"cn-data/internal/schema"
	"cn-data/internal/slogx"
	"cn-data/internal/source"
)

// RecordSink receives the stored rows of one entity. Writer accumulators
// satisfy it.
type RecordSink interface {
	Add(code string, rows []schema.DailyRecord) error
}

// Sinks are the per-kind destinations of the entity stage.
type Sinks struct {
	Daily   RecordSink
	Weekly  RecordSink
	Monthly RecordSink
}

// Options tunes the entity stage.
type Options struct {
	Workers     int
	Heartbeat   time.Duration
	ProgressBar bool
	LogLevel    slog.Level
	LogFormat   string
	LogOutput   io.Writer // worker log lines; default stderr
}

// EntityResult is sent by workers for fan-in.
type EntityResult struct {
	Code        string
	Dropped     bool
	Rows        int
	Weekly      int
	Monthly     int
	LastDate    string
	Skipped     []reconcile.ShardError
	FieldErrors int
	BadRows     int
	Failures    []string // "family/freq"
}

// Pipeline fans entities out to workers: reconcile, compute indicators,
// resample, hand rows to the sinks.
type Pipeline struct {
	provider  source.Provider
	engine    *indicator.Engine
	resampler *resample.Resampler
	sinks     Sinks
	metrics   *metrics.Collector
	opts      Options
	logger    *slog.Logger
}

// New creates a Pipeline. metrics may be nil.
func New(p source.Provider, engine *indicator.Engine, sinks Sinks, m *metrics.Collector, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		provider:  p,
		engine:    engine,
		resampler: resample.New(engine),
		sinks:     sinks,
		metrics:   m,
		opts:      opts,
		logger:    logger,
	}
}

// Run processes every entity of the provider and fills rep. A sink error
// or ctx cancellation stops dispatch and is returned; per-entity problems
// are counted in rep and never stop the run.
func (p *Pipeline) Run(ctx context.Context, rep *RunReport) error {
	codes := p.provider.Codes()
	rep.Entities.Total = len(codes)
	if len(codes) == 0 {
		p.logger.Info("no entities to consolidate, skip")
		return nil
	}
	p.logger.Info("entities to consolidate", "entities", len(codes), "workers", p.opts.Workers, "provider", p.provider.GetName())

	logs := make(chan string, 4096)
	logger := slogx.NewChanLogger(logs, p.opts.LogLevel, p.opts.LogFormat)
	var logWg sync.WaitGroup
	logWg.Add(1)
	go func() {
		defer logWg.Done()
		runLogWriter(p.opts.LogOutput, logs)
	}()
	defer func() {
		close(logs)
		logWg.Wait()
	}()

	var bar *progressbar.ProgressBar
	if p.opts.ProgressBar {
		bar = progressbar.Default(int64(len(codes)), "consolidate")
	}

	pending := make(chan string, len(codes))
	for _, c := range codes {
		pending <- c
	}
	close(pending)

	results := make(chan EntityResult, p.opts.Workers*4)
	t := &tally{}
	var resWg sync.WaitGroup
	resWg.Add(1)
	go func() {
		defer resWg.Done()
		p.collect(results, t, rep, bar)
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWg sync.WaitGroup
	hbWg.Add(1)
	go func() {
		defer hbWg.Done()
		runHeartbeat(hbCtx, p.opts.Heartbeat, len(codes), t, logger)
	}()

	reconciler := reconcile.New(p.provider, logger)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case code, ok := <-pending:
					if !ok {
						return nil
					}
					res, err := p.processEntity(gctx, reconciler, code, logger)
					if err != nil {
						return err
					}
					results <- res
				}
			}
		})
	}
	err := g.Wait()
	close(results)
	resWg.Wait()
	stopHeartbeat()
	hbWg.Wait()
	if bar != nil {
		bar.Finish()
	}

	processed, dropped, rows := t.snapshot()
	logger.Info("summary", "processed", processed, "dropped", dropped, "rows", rows,
		"shard_errors", len(rep.ShardErrors), "field_errors", rep.FieldErrors)
	if len(rep.ShardErrors) > 0 {
		logger.Info("summary shard errors", "count", len(rep.ShardErrors), "reasons", joinShardReasons(rep.ShardErrors))
	}
	if len(rep.IndicatorFailures) > 0 {
		keys := make([]string, 0, len(rep.IndicatorFailures))
		for k := range rep.IndicatorFailures {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			logger.Info("summary indicator failures", "family", k, "entities", rep.IndicatorFailures[k])
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return fmt.Errorf("entity stage interrupted after %d entities: %w", processed+dropped, ctx.Err())
		}
		return fmt.Errorf("entity stage: %w", err)
	}
	return nil
}

func (p *Pipeline) collect(results <-chan EntityResult, t *tally, rep *RunReport, bar *progressbar.ProgressBar) {
	for r := range results {
		t.mu.Lock()
		if r.Dropped {
			t.dropped++
			rep.Entities.Dropped++
			rep.DroppedEntities = append(rep.DroppedEntities, r.Code)
		} else {
			t.processed++
			t.rows += int64(r.Rows)
			rep.Entities.Processed++
			rep.Rows += int64(r.Rows)
			if r.LastDate > rep.LatestDate {
				rep.LatestDate = r.LastDate
			}
		}
		for _, s := range r.Skipped {
			rep.ShardErrors = append(rep.ShardErrors, shardFailure{Code: r.Code, Path: s.Path, Reason: s.Err.Error()})
		}
		rep.FieldErrors += r.FieldErrors
		rep.BadRows += r.BadRows
		for _, f := range r.Failures {
			rep.IndicatorFailures[f]++
		}
		t.mu.Unlock()

		if p.metrics != nil {
			if r.Dropped {
				p.metrics.EntityDropped()
			} else {
				p.metrics.EntityProcessed()
			}
			p.metrics.ShardErrors(len(r.Skipped))
			p.metrics.FieldErrors(r.FieldErrors)
			p.metrics.BadRows(r.BadRows)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
}

// processEntity returns an error only for failures that must stop the run:
// cancellation and sink (flush) errors.
func (p *Pipeline) processEntity(ctx context.Context, rc *reconcile.Reconciler, code string, logger *slog.Logger) (EntityResult, error) {
	start := time.Now()
	res, err := rc.Reconcile(ctx, p.provider.Sources(code))
	if err != nil {
		return EntityResult{}, err
	}
	out := EntityResult{
		Code:        code,
		Skipped:     res.Skipped,
		FieldErrors: res.FieldErrors,
		BadRows:     res.BadRows,
	}
	if res.Empty {
		out.Dropped = true
		logger.Warn("entity dropped", "code", code, "reason", "no readable rows", "shards_skipped", len(res.Skipped))
		return out, nil
	}

	bars := res.Bars
	out.Failures = p.failures(p.engine.Compute(bars, indicator.Daily), indicator.Daily)
	coarse := p.resampler.Process(bars)
	out.Failures = append(out.Failures, p.failures(coarse.WeeklyReport, indicator.Weekly)...)
	out.Failures = append(out.Failures, p.failures(coarse.MonthlyReport, indicator.Monthly)...)
	for _, f := range out.Failures {
		logger.Warn("indicator family failed", "code", code, "family", f)
	}

	if err := p.sinks.Daily.Add(code, records(bars)); err != nil {
		return out, err
	}
	if err := p.sinks.Weekly.Add(code, records(coarse.Weekly)); err != nil {
		return out, err
	}
	if err := p.sinks.Monthly.Add(code, records(coarse.Monthly)); err != nil {
		return out, err
	}

	out.Rows, out.Weekly, out.Monthly = len(bars), len(coarse.Weekly), len(coarse.Monthly)
	out.LastDate = bars[len(bars)-1].DateKey()
	logger.Debug("entity done", "code", code, "rows", out.Rows, "weekly", out.Weekly, "monthly", out.Monthly,
		"elapsed", time.Since(start).Truncate(time.Millisecond))
	return out, nil
}

func (p *Pipeline) failures(rep indicator.Report, freq indicator.Frequency) []string {
	var out []string
	for _, o := range rep.Failed() {
		out = append(out, o.Family+"/"+freq.String())
		if p.metrics != nil {
			p.metrics.IndicatorFailure(o.Family, freq.String())
		}
	}
	return out
}

func records(bars []model.Bar) []schema.DailyRecord {
	out := make([]schema.DailyRecord, len(bars))
	for i := range bars {
		out[i] = schema.ToDailyRecord(&bars[i])
	}
	return out
}
