package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthsync/internal/application/factories/infrastructure"
	"healthsync/internal/config"
	"healthsync/internal/pipeline"
	"healthsync/internal/provider"
	"healthsync/internal/provider/fitbit"
	"healthsync/internal/queue"
	"healthsync/internal/worker"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	q, err := infraFactory.Queue(ctx)
	if err != nil {
		logger.Error("failed to build queue client", "error", err)
		os.Exit(1)
	}
	if queue.ProcessLocal(q) {
		logger.Warn("queue backend is in-process memory; worker only sees events published in this process", "configured_backend", cfg.Queue.Backend)
	}

	credentials, err := infraFactory.CredentialStore(ctx)
	if err != nil {
		logger.Error("failed to build credential store", "error", err)
		os.Exit(1)
	}

	p, err := pipeline.New(pipeline.Config{
		Provider:       string(provider.Fitbit),
		DefaultUserID:  cfg.Worker.DefaultUserID,
		OutputPath:     cfg.Worker.OutputFile,
		DedupeCapacity: cfg.Worker.DedupeCapacity,
	}, credentials, fitbit.NewClient(cfg.Fitbit.BaseURL, nil, cfg.Fitbit.HTTPTimeout()))
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	go worker.ServeMetrics(ctx, ":"+cfg.Worker.MetricsPort, logger)

	w := worker.New(q, p, worker.Config{
		Topics: worker.Topics{
			Raw:   cfg.Worker.TopicRaw,
			Retry: cfg.Worker.TopicRetry,
			DLQ:   cfg.Worker.TopicDLQ,
		},
		MaxRetries:   cfg.Worker.MaxRetries,
		BatchSize:    cfg.Worker.BatchSize,
		PollInterval: cfg.Worker.PollInterval(),
		Timing: worker.Timing{
			Enabled:   cfg.Worker.TimingEnabled,
			Level:     worker.ParseLevel(cfg.Worker.TimingLogLevel),
			WarnAfter: time.Duration(cfg.Worker.TimingWarnMS) * time.Millisecond,
		},
	}, logger)

	if err := w.Run(ctx); err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	logger.Info("worker exited")
}
