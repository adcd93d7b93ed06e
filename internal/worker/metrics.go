package worker

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_processed_total",
		Help: "The total number of events persisted",
	})
	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_duplicate_total",
		Help: "The total number of events skipped as duplicates",
	})
	eventsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_retried_total",
		Help: "The total number of failed events republished to the retry topic",
	})
	eventsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worker_events_dead_lettered_total",
		Help: "The total number of failed events moved to the dead-letter topic",
	})
	consumeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_consume_errors_total",
		Help: "Consume calls that failed with something other than an idle timeout",
	}, []string{"topic"})
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_operation_duration_seconds",
		Help:    "Duration of worker stages, event runs and consume calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

// ServeMetrics exposes /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
