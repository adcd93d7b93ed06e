// Package ingest accepts webhook notifications and hands them to the queue without waiting on
// processing.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"healthsync/internal/provider"
	"healthsync/internal/queue"

	"github.com/google/uuid"
)

type Service struct {
	queue       queue.Client
	topic       string
	verifyCodes map[string]struct{}
	logger      *slog.Logger
}

func NewService(q queue.Client, topic string, verifyCodes map[string]struct{}, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{queue: q, topic: topic, verifyCodes: verifyCodes, logger: logger}
}

func (s *Service) IsValidVerificationCode(code string) bool {
	if code == "" {
		return false
	}
	_, ok := s.verifyCodes[code]
	return ok
}

// IngestNotifications publishes the notifications in body to the raw topic. An object is a
// single notification; an array contributes its object elements; anything else queues nothing.
func (s *Service) IngestNotifications(ctx context.Context, body any) (provider.Receipt, error) {
	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	}

	batchID := uuid.NewString()
	queued, err := s.queue.PublishMany(ctx, s.topic, items)
	if err != nil {
		s.logger.Error("failed to publish notifications", "batch_id", batchID, "topic", s.topic, "error", err)
		return provider.Receipt{}, fmt.Errorf("publish notifications: %w", err)
	}

	depth := s.queue.Size(ctx, s.topic)
	s.logger.Info("notifications queued",
		"batch_id", batchID,
		"received", len(items),
		"queued", queued,
		"queue_depth", depth.String(),
		"topic", s.topic,
	)

	return provider.Receipt{
		Status:     provider.StatusReceived,
		Queued:     queued,
		Topic:      s.topic,
		QueueDepth: &depth,
	}, nil
}
