package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"cn-data/internal/indicator"
	"cn-data/internal/metrics"
	"cn-data/internal/pipeline"
	"cn-data/internal/quality"
	"cn-data/internal/schema"
	"cn-data/internal/sector"
	"cn-data/internal/slogx"
	"cn-data/internal/source"
	"cn-data/internal/writer"
)

// RunID identifies one consolidation run; it names chunk files and the report.
type RunID string

type accumulator = writer.Accumulator[schema.DailyRecord, *schema.DailyRecord]

// Runner sequences the stages of one run: entities, compaction, sector
// rollup, quality check, report.
type Runner struct {
	cfg       *Config
	provider  source.Provider
	engine    *indicator.Engine
	compactor *writer.Compactor
	metrics   *metrics.Collector
	logger    *slog.Logger
	runID     RunID
}

// NewRunner wires a Runner.
func NewRunner(cfg *Config, p source.Provider, engine *indicator.Engine, compactor *writer.Compactor, m *metrics.Collector, logger *slog.Logger, runID RunID) *Runner {
	return &Runner{cfg: cfg, provider: p, engine: engine, compactor: compactor, metrics: m, logger: logger, runID: runID}
}

// Run executes the run and always writes the report (and metrics when
// configured). An interrupted or failed entity stage skips compaction, so
// the previous outputs stay intact and the run can simply be repeated.
func (r *Runner) Run(ctx context.Context) (err error) {
	rep := pipeline.NewRunReport(string(r.runID), r.cfg.ProcessingYear, time.Now().UTC())
	defer func() {
		rep.Finish(err)
		if werr := pipeline.WriteRunReport(r.cfg.ReportPath(), rep); werr != nil {
			r.logger.Warn("could not write run report", "error", werr)
		}
		if err == nil {
			r.metrics.MarkSuccess(time.Now())
		}
		if r.cfg.MetricsFile != "" {
			if werr := r.metrics.WriteFile(r.cfg.MetricsFile); werr != nil {
				r.logger.Warn("could not write metrics", "error", werr)
			}
		}
	}()

	chunkDir := r.cfg.ChunkDir(string(r.runID))
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	daily := writer.NewAccumulator[schema.DailyRecord](chunkDir, "daily", string(r.runID), r.cfg.FlushEntities, r.logger)
	weekly := writer.NewAccumulator[schema.DailyRecord](chunkDir, "weekly", string(r.runID), r.cfg.FlushEntities, r.logger)
	monthly := writer.NewAccumulator[schema.DailyRecord](chunkDir, "monthly", string(r.runID), r.cfg.FlushEntities, r.logger)

	if err := r.stage(rep, "entities", func() error {
		p := pipeline.New(r.provider, r.engine, pipeline.Sinks{Daily: daily, Weekly: weekly, Monthly: monthly}, r.metrics,
			pipeline.Options{
				Workers:     r.cfg.Workers,
				Heartbeat:   r.cfg.Heartbeat,
				ProgressBar: r.cfg.Progress,
				LogLevel:    slogx.ParseLevel(r.cfg.LogLevel),
				LogFormat:   r.cfg.LogFormat,
			}, r.logger)
		return p.Run(ctx, rep)
	}); err != nil {
		r.logger.Warn("entity stage failed, outputs left untouched", "chunks_dir", chunkDir)
		return err
	}

	accs := []*accumulator{daily, weekly, monthly}
	for _, a := range accs {
		if err := a.Close(); err != nil {
			return fmt.Errorf("flush %s: %w", a.Kind(), err)
		}
	}
	// cold files live in the cache dir, which compaction rewrites
	if err := r.provider.Close(); err != nil {
		r.logger.Warn("close provider", "error", err)
	}

	if err := r.stage(rep, "compact", func() error { return r.compact(rep, daily, weekly, monthly) }); err != nil {
		return err
	}
	var chunks []string
	for _, a := range accs {
		chunks = append(chunks, a.Chunks()...)
	}
	if err := writer.Cleanup(chunks); err != nil {
		r.logger.Warn("chunk cleanup", "error", err)
	}
	os.Remove(chunkDir)

	if err := r.stage(rep, "sector", func() error { return r.rollup(ctx, rep) }); err != nil {
		return err
	}
	return r.stage(rep, "quality", r.checkQuality)
}

func (r *Runner) stage(rep *pipeline.RunReport, name string, fn func() error) error {
	start := time.Now()
	r.logger.Info("stage start", "stage", name, "run_id", r.runID)
	err := fn()
	d := time.Since(start)
	rep.Stage(name, d)
	r.metrics.StageDuration(name, d)
	if err != nil {
		r.logger.Error("stage failed", "stage", name, "error", err)
		return err
	}
	r.logger.Info("stage done", "stage", name, "elapsed", d.Truncate(time.Millisecond))
	return nil
}

func (r *Runner) compact(rep *pipeline.RunReport, daily, weekly, monthly *accumulator) error {
	record := func(sum writer.Summary) {
		for path, n := range sum.Files {
			rep.Outputs[path] = n
			r.metrics.RowsWritten(path, n)
		}
		if sum.Duplicates > 0 {
			r.logger.Warn("duplicate keys dropped during compaction", "rows", sum.Duplicates)
		}
	}

	sum, err := r.compactor.Daily(daily.Chunks())
	switch {
	case errors.Is(err, writer.ErrNoChunks):
		r.logger.Warn("nothing to compact", "kind", "daily")
	case err != nil:
		return fmt.Errorf("compact daily: %w", err)
	default:
		record(sum)
		if len(sum.Kept) > 0 {
			r.logger.Info("archive partitions kept", "files", len(sum.Kept), "rows_discarded", sum.Discarded)
		}
	}

	for _, t := range []struct {
		acc  *accumulator
		name string
	}{{weekly, r.cfg.WeeklyName()}, {monthly, r.cfg.MonthlyName()}} {
		sum, err := r.compactor.Table(t.acc.Chunks(), t.name)
		switch {
		case errors.Is(err, writer.ErrNoChunks):
			r.logger.Warn("nothing to compact", "kind", t.acc.Kind())
		case err != nil:
			return fmt.Errorf("compact %s: %w", t.acc.Kind(), err)
		default:
			record(sum)
		}
	}
	return nil
}

// checkQuality writes the data quality report over the committed outputs. A
// failed check is reported inside the file, not as a run error.
func (r *Runner) checkQuality() error {
	files, err := r.dailyFiles()
	if err != nil {
		return err
	}
	q := quality.Build(string(r.runID), files, r.cfg.SectorOutputPath())
	if err := quality.Write(r.cfg.QualityPath(), q); err != nil {
		r.logger.Warn("could not write quality report", "error", err)
		return nil
	}
	r.logger.Info("quality report saved", "path", r.cfg.QualityPath(),
		"global_score", q.Stock.GlobalScore, "flow_score", q.Stock.FundFlow.Score,
		"stock_status", q.Stock.Status, "sector_status", q.Sector.Status)
	return nil
}

func (r *Runner) dailyFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.cfg.DailyDir(), "stock_*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Runner) rollup(ctx context.Context, rep *pipeline.RunReport) error {
	if _, err := os.Stat(r.cfg.SectorFile); err != nil {
		r.logger.Warn("sector table not found, rollup skipped", "path", r.cfg.SectorFile)
		return nil
	}
	files, err := r.dailyFiles()
	if err != nil {
		return err
	}
	st, err := sector.New(sector.Config{
		SectorFile:     r.cfg.SectorFile,
		SectorListFile: r.cfg.SectorListFile,
		MembershipFile: r.cfg.MembershipFile,
		DailyFiles:     files,
		Output:         r.cfg.SectorOutputPath(),
	}, r.logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("sector rollup: %w", err)
	}
	rep.Outputs[r.cfg.SectorOutputPath()] = int64(st.Rows)
	r.metrics.RowsWritten(r.cfg.SectorOutputPath(), int64(st.Rows))
	rep.Sector = map[string]any{
		"sectors":       st.Sectors,
		"rows":          st.Rows,
		"members":       st.Members,
		"contributions": st.Contributions,
		"zero_filled":   st.ZeroFilled,
		"ambiguous":     st.Ambiguous,
		"field_errors":  st.FieldErrors,
		"bad_rows":      st.BadRows,
	}
	return nil
}
