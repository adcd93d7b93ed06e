package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"healthsync/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the queue needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func startOffset(v string) int64 {
	// A group with no committed offset starts from StartOffset.
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "latest":
		return kafka.LastOffset
	default:
		return kafka.FirstOffset
	}
}

func newGroupReader(cfg Config, topic string) messageReader {
	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   10 * time.Second,
		DualStack: false, // Force IPv4
	}

	// With a GroupID, ReadMessage commits the offset before returning.
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,    // Process immediately
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: startOffset(cfg.StartOffset),
	})
}

// reader returns the shared group reader for topic, creating it on first use.
func (q *Queue) reader(topic string) messageReader {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r, ok := q.readers[topic]; ok {
		return r
	}
	r := q.newReader(topic)
	q.readers[topic] = r
	return r
}

// ConsumeBatch reads until maxMessages are collected or wait elapses. Offsets are already
// committed for whatever was read, so a failure after the first message still returns the
// partial batch.
func (q *Queue) ConsumeBatch(ctx context.Context, topic string, maxMessages int, wait time.Duration) ([]event.Event, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	r := q.reader(topic)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var events []event.Event
	for len(events) < maxMessages {
		msg, err := r.ReadMessage(waitCtx)
		if err != nil {
			if len(events) > 0 {
				return events, nil
			}
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, nil
			}
			if errors.Is(err, context.Canceled) {
				return nil, nil
			}
			return nil, fmt.Errorf("kafka read %s: %w", topic, err)
		}

		ev, err := event.Decode(msg.Value)
		if err != nil {
			q.logger.Debug("dropping malformed message", "topic", topic, "offset", msg.Offset, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
