// Command replay runs captured newline-delimited JSON breadcrumb files
// through the full validate-normalize-audit-load pipeline. It exits once
// every file has drained and the final flush has committed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/whimsydata/breadcrumb-etl/internal/adapter/filesource"
	"github.com/whimsydata/breadcrumb-etl/internal/adapter/postgres"
	"github.com/whimsydata/breadcrumb-etl/internal/config"
	"github.com/whimsydata/breadcrumb-etl/internal/observability"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s file.ndjson [file.ndjson ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	source := filesource.New(flag.Args(), logger)
	defer source.Close()

	consumer := pipeline.NewConsumer(source, store, logger, metrics, pipeline.Options{
		MaxDeliveries: cfg.MaxDeliveries,
		IdleTimeout:   cfg.FlushIdleTimeout,
	})

	if err := consumer.Run(ctx); err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("replay complete", "files", flag.NArg())
}
