package app

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"cn-data/internal/indicator"
	"cn-data/internal/metrics"
	"cn-data/internal/slogx"
	"cn-data/internal/source"
	"cn-data/internal/writer"
)

// ProvideConfig loads config from file and environment (for Wire).
func ProvideConfig() (*Config, error) {
	return LoadConfig()
}

// ProvideLogger builds the process logger and installs it as default (for Wire).
func ProvideLogger(cfg *Config) *slog.Logger {
	l := slogx.New(slogx.ParseLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	slog.SetDefault(l)
	return l
}

// ProvideCatalog scans cold, kline and flow directories (for Wire).
// The returned cleanup closes the cold files still open.
func ProvideCatalog(cfg *Config, logger *slog.Logger) (*source.FSCatalog, func(), error) {
	c, err := source.NewFSCatalog(source.Layout{
		ColdDir:  cfg.CacheDir,
		KlineDir: cfg.KlineDir,
		FlowDir:  cfg.FlowDir,
	})
	if err != nil {
		return nil, nil, err
	}
	cold, inc, flows := c.Stats()
	logger.Info("sources scanned", "entities", len(c.Codes()), "cold_files", cold, "increment_shards", inc, "flow_shards", flows)
	return c, func() { c.Close() }, nil
}

// ProvideEngine returns the engine with every indicator family.
func ProvideEngine() *indicator.Engine {
	return indicator.NewDefaultEngine()
}

// ProvideMetrics creates the run's collector.
func ProvideMetrics() *metrics.Collector {
	return metrics.NewCollector()
}

// ProvideRunID returns a fresh run id.
func ProvideRunID() RunID {
	return RunID(uuid.NewString())
}

// ProvideCompactor creates the output compactor for the processing year.
func ProvideCompactor(cfg *Config, logger *slog.Logger) *writer.Compactor {
	return writer.NewCompactor(writer.Layout{
		OutputDir: cfg.OutputDir,
		CacheDir:  cfg.CacheDir,
		Year:      cfg.ProcessingYear,
	}, logger)
}
