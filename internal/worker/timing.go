package worker

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Timing logs and records the duration of each worker operation.
type Timing struct {
	Enabled bool
	Level   slog.Level
	// Slow operations at or above WarnAfter log at warn.
	WarnAfter time.Duration
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run times fn as operation. Errors for which quiet returns true are returned without a
// timing error line.
func (t Timing) run(ctx context.Context, logger *slog.Logger, operation string, fn func() error, quiet func(error) bool) error {
	if !t.Enabled {
		return fn()
	}

	started := time.Now()
	err := fn()
	elapsed := time.Since(started)
	ms := float64(elapsed.Microseconds()) / 1000

	if err != nil {
		if quiet != nil && quiet(err) {
			return err
		}
		operationDuration.WithLabelValues(operation, "error").Observe(elapsed.Seconds())
		logger.LogAttrs(ctx, slog.LevelError, "timing",
			slog.String("operation", operation),
			slog.Float64("duration_ms", ms),
			slog.String("status", "error"),
			slog.String("error", err.Error()),
		)
		return err
	}

	operationDuration.WithLabelValues(operation, "ok").Observe(elapsed.Seconds())
	level := t.Level
	if t.WarnAfter > 0 && elapsed >= t.WarnAfter {
		level = slog.LevelWarn
	}
	logger.LogAttrs(ctx, level, "timing",
		slog.String("operation", operation),
		slog.Float64("duration_ms", ms),
		slog.String("status", "ok"),
	)
	return nil
}
