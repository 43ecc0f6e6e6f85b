package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cn-data/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func main() {
	a, cleanup, err := InitializeApp()
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}

	cfg := a.Config
	slog.Info("consolidation start",
		"processing_year", cfg.ProcessingYear,
		"output_dir", cfg.OutputDir,
		"cache_dir", cfg.CacheDir,
		"workers", cfg.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = a.Runner.Run(ctx)
	stop()
	cleanup()
	if err != nil {
		slog.Error("consolidation failed", "error", err, "report", cfg.ReportPath())
		os.Exit(1)
	}
	slog.Info("consolidation done", "report", cfg.ReportPath())
}
