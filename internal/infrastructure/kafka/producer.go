package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"healthsync/internal/domain/event"
	"healthsync/internal/queue"

	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers     []string
	ClientID    string
	GroupID     string
	StartOffset string // "earliest" (default) or "latest"
}

// messageWriter is the part of *kafka.Writer the queue needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue is the consumer-group streaming transport. One writer serves every topic; each
// consumed topic gets its own lazily created group reader.
type Queue struct {
	writer    messageWriter
	newReader func(topic string) messageReader
	logger    *slog.Logger

	mu      sync.Mutex
	readers map[string]messageReader
}

func New(cfg Config, logger *slog.Logger) (*Queue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka: group id is required")
	}

	// Topic is left empty so each message names its own.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            5,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}

	return newQueue(w, func(topic string) messageReader { return newGroupReader(cfg, topic) }, logger), nil
}

func newQueue(w messageWriter, newReader func(string) messageReader, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		writer:    w,
		newReader: newReader,
		logger:    logger,
		readers:   make(map[string]messageReader),
	}
}

func (q *Queue) Publish(ctx context.Context, topic string, ev event.Event) error {
	_, err := q.PublishMany(ctx, topic, []any{ev})
	return err
}

// PublishMany writes the object items in one synchronous batch.
func (q *Queue) PublishMany(ctx context.Context, topic string, items []any) (int, error) {
	events := queue.Objects(items)
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := ev.Encode()
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Value: value})
	}

	if err := q.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("failed to write messages to %s: %w", topic, err)
	}
	return len(msgs), nil
}

// Size is not cheaply available from a consumer group.
func (q *Queue) Size(context.Context, string) queue.Depth {
	return queue.Unknown
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for topic, r := range q.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close reader %s: %w", topic, err)
		}
		delete(q.readers, topic)
	}
	if err := q.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}
