package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthsync/internal/api"
	"healthsync/internal/application/factories/infrastructure"
	"healthsync/internal/config"
	"healthsync/internal/ingest"
	"healthsync/internal/provider"
	"healthsync/internal/provider/fitbit"
	"healthsync/internal/queue"
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
		logger.Warn("queue backend is in-process memory; webhook events will only be visible to a worker in this process", "configured_backend", cfg.Queue.Backend)
	}

	credentials, err := infraFactory.CredentialStore(ctx)
	if err != nil {
		logger.Error("failed to build credential store", "error", err)
		os.Exit(1)
	}

	fitbitClient := fitbit.NewClient(cfg.Fitbit.BaseURL, nil, cfg.Fitbit.HTTPTimeout())
	registry := provider.NewRegistry(
		map[provider.Kind]provider.PushCapable{
			provider.Fitbit: ingest.NewService(q, cfg.Worker.TopicRaw, cfg.Fitbit.VerifyCodeSet(), logger),
			provider.Google: provider.UnsupportedPush{
				Kind:   provider.Google,
				Detail: "Google Fit push webhook flow is not configured in this service",
				Logger: logger,
			},
			provider.Apple: provider.UnsupportedPush{
				Kind:   provider.Apple,
				Detail: "Apple Health has no server-side push webhook; use device uploads",
				Logger: logger,
			},
		},
		map[provider.Kind]provider.PullCapable{
			provider.Fitbit: fitbit.NewPullService(fitbitClient),
			provider.Google: provider.UnsupportedPull{Kind: provider.Google, Reason: "no Google Fit client configured"},
			provider.Apple:  provider.UnsupportedPull{Kind: provider.Apple, Reason: "Apple Health pull is not supported server-side; use device uploads"},
		},
	)

	handlers := api.NewHandlers(registry, credentials, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.HTTP.Port, "queue_backend", cfg.Queue.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exiting")
}
