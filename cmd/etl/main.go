package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/whimsydata/breadcrumb-etl/internal/adapter/httpadapter"
	"github.com/whimsydata/breadcrumb-etl/internal/adapter/kafkareport"
	"github.com/whimsydata/breadcrumb-etl/internal/adapter/natsbus"
	"github.com/whimsydata/breadcrumb-etl/internal/adapter/postgres"
	"github.com/whimsydata/breadcrumb-etl/internal/config"
	"github.com/whimsydata/breadcrumb-etl/internal/observability"
	"github.com/whimsydata/breadcrumb-etl/internal/pipeline"
)

func main() {
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

	source, err := natsbus.New(natsbus.Config{
		URL:     cfg.NATSURL,
		Subject: cfg.NATSSubject,
		Stream:  cfg.NATSStream,
		Durable: cfg.NATSDurable,
	}, logger)
	if err != nil {
		logger.Error("failed to open nats subscription", "error", err)
		os.Exit(1)
	}

	// Flush reporting is feature-flagged via REPORT_KAFKA_BROKERS.
	var reporter pipeline.Reporter
	var reportWriter *kafkareport.Writer
	if cfg.ReportKafkaEnabled() {
		reportWriter = kafkareport.NewWriter(cfg.ReportKafkaBrokers, cfg.ReportKafkaTopic, logger)
		reporter = reportWriter
		logger.Info("flush reporting enabled", "topic", cfg.ReportKafkaTopic)
	} else {
		logger.Info("flush reporting disabled")
	}

	consumer := pipeline.NewConsumer(source, store, logger, metrics, pipeline.Options{
		Reporter:      reporter,
		MaxDeliveries: cfg.MaxDeliveries,
		IdleTimeout:   cfg.FlushIdleTimeout,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, consumer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the consumer; done closes once the final flush has run.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		<-done
	case <-done:
		logger.Info("consumer stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := source.Close(); err != nil {
		logger.Error("nats source close error", "error", err)
	}
	if reportWriter != nil {
		if err := reportWriter.Close(); err != nil {
			logger.Error("report writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
