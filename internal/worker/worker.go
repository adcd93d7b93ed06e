// Package worker runs the polling loop that drains the raw and retry topics through the
// processing pipeline and escalates failures to retry or dead-letter.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"healthsync/internal/domain/event"
	"healthsync/internal/pipeline"
	"healthsync/internal/queue"
)

const requeueTimeout = 5 * time.Second

type Topics struct {
	Raw   string
	Retry string
	DLQ   string
}

type Config struct {
	Topics       Topics
	MaxRetries   int
	BatchSize    int
	PollInterval time.Duration
	Timing       Timing
}

// Worker is the single polling loop of a process. The dead-letter topic is written, never read.
type Worker struct {
	queue    queue.Client
	pipeline *pipeline.Pipeline
	cfg      Config
	logger   *slog.Logger
}

func New(q queue.Client, p *pipeline.Pipeline, cfg Config, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: q, pipeline: p, cfg: cfg, logger: logger}
}

// Run cycles until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started",
		"raw", w.cfg.Topics.Raw,
		"retry", w.cfg.Topics.Retry,
		"dlq", w.cfg.Topics.DLQ,
		"batch_size", w.cfg.BatchSize,
		"max_retries", w.cfg.MaxRetries,
	)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if w.Cycle(ctx) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

// Cycle drains one batch from raw, then one from retry, and returns how many events it handled.
func (w *Worker) Cycle(ctx context.Context) int {
	return w.drain(ctx, w.cfg.Topics.Raw) + w.drain(ctx, w.cfg.Topics.Retry)
}

func (w *Worker) drain(ctx context.Context, topic string) int {
	var events []event.Event
	err := w.cfg.Timing.run(ctx, w.logger, "worker.queue.consume."+topic, func() error {
		var err error
		events, err = w.queue.ConsumeBatch(ctx, topic, w.cfg.BatchSize, w.cfg.PollInterval)
		return err
	}, queue.IsIdleTimeout)
	if err != nil {
		if queue.IsIdleTimeout(err) {
			w.logger.Debug("idle poll timeout", "topic", topic)
		} else if ctx.Err() == nil {
			consumeErrors.WithLabelValues(topic).Inc()
			w.logger.Warn("consume error", "topic", topic, "error", err)
		}
		return 0
	}

	for i, ev := range events {
		if ev == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			for _, rest := range events[i:] {
				if rest != nil {
					w.requeue(ctx, rest, err)
				}
			}
			break
		}
		if err := w.cfg.Timing.run(ctx, w.logger, "worker.event.process", func() error {
			return w.process(ctx, ev)
		}, nil); err != nil {
			w.escalate(ctx, ev, err)
		}
	}
	return len(events)
}

func (w *Worker) process(ctx context.Context, ev event.Event) error {
	var pc *pipeline.Context
	_ = w.cfg.Timing.run(ctx, w.logger, "worker.stage.parse", func() error {
		pc = w.pipeline.Parse(ev)
		return nil
	}, nil)
	_ = w.cfg.Timing.run(ctx, w.logger, "worker.stage.dedupe", func() error {
		w.pipeline.Dedupe(pc)
		return nil
	}, nil)

	if pc.IsDuplicate {
		eventsDuplicate.Inc()
		w.logger.Info("duplicate skipped", "dedupe_key", pc.DedupeKey, "retry_count", pc.RetryCount)
		return nil
	}

	if err := w.cfg.Timing.run(ctx, w.logger, "worker.stage.fetch_details", func() error {
		return w.pipeline.FetchDetails(ctx, pc)
	}, nil); err != nil {
		return err
	}
	if err := w.cfg.Timing.run(ctx, w.logger, "worker.stage.persist", func() error {
		return w.pipeline.Persist(pc)
	}, nil); err != nil {
		return err
	}

	eventsProcessed.Inc()
	w.logger.Info("processed event", "dedupe_key", pc.DedupeKey, "retry_count", pc.RetryCount)
	return nil
}

// escalate republishes a failed event with the next retry generation: to the retry topic
// while retry_count is below MaxRetries, otherwise to the dead-letter topic.
func (w *Worker) escalate(ctx context.Context, ev event.Event, cause error) {
	if ctx.Err() != nil {
		w.requeue(ctx, ev, cause)
		return
	}

	retryCount := ev.RetryCount()
	next := ev.WithFailure(cause)

	topic := w.cfg.Topics.Retry
	if retryCount >= w.cfg.MaxRetries {
		topic = w.cfg.Topics.DLQ
	}

	if err := w.queue.Publish(ctx, topic, next); err != nil {
		w.logger.Error("failed to escalate event",
			"topic", topic,
			"retry_count", next.RetryCount(),
			"cause", cause.Error(),
			"error", fmt.Errorf("publish: %w", err),
		)
		return
	}

	if topic == w.cfg.Topics.DLQ {
		eventsDeadLettered.Inc()
		w.logger.Error("event moved to dead-letter topic", "topic", topic, "retry_count", next.RetryCount(), "error", cause)
		return
	}
	eventsRetried.Inc()
	w.logger.Warn("event failed; queued for retry", "topic", topic, "retry_count", next.RetryCount(), "error", cause)
}

// requeue hands an event interrupted by shutdown back to the retry topic unchanged. The
// transport has already committed it, so the publish runs detached from ctx.
func (w *Worker) requeue(ctx context.Context, ev event.Event, cause error) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()

	if err := w.queue.Publish(pubCtx, w.cfg.Topics.Retry, ev); err != nil {
		w.logger.Error("failed to requeue interrupted event",
			"topic", w.cfg.Topics.Retry,
			"retry_count", ev.RetryCount(),
			"cause", cause.Error(),
			"error", fmt.Errorf("publish: %w", err),
		)
		return
	}
	w.logger.Warn("event interrupted by shutdown; requeued", "topic", w.cfg.Topics.Retry, "retry_count", ev.RetryCount())
}
