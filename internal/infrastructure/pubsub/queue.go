// Package pubsub implements the pull-and-ack queue transport on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gpubsub "cloud.google.com/go/pubsub/apiv1"
	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"

	"healthsync/internal/domain/event"
	"healthsync/internal/queue"
)

// publisher is the subset of *gpubsub.PublisherClient in use.
type publisher interface {
	Publish(ctx context.Context, req *pubsubpb.PublishRequest, opts ...gax.CallOption) (*pubsubpb.PublishResponse, error)
	GetTopic(ctx context.Context, req *pubsubpb.GetTopicRequest, opts ...gax.CallOption) (*pubsubpb.Topic, error)
	CreateTopic(ctx context.Context, req *pubsubpb.Topic, opts ...gax.CallOption) (*pubsubpb.Topic, error)
	Close() error
}

// subscriber is the subset of *gpubsub.SubscriberClient in use.
type subscriber interface {
	Pull(ctx context.Context, req *pubsubpb.PullRequest, opts ...gax.CallOption) (*pubsubpb.PullResponse, error)
	Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, opts ...gax.CallOption) error
	GetSubscription(ctx context.Context, req *pubsubpb.GetSubscriptionRequest, opts ...gax.CallOption) (*pubsubpb.Subscription, error)
	CreateSubscription(ctx context.Context, req *pubsubpb.Subscription, opts ...gax.CallOption) (*pubsubpb.Subscription, error)
	Close() error
}

type Config struct {
	ProjectID   string
	TopicPrefix string
	// Subscriptions maps a logical topic (or "default") to a subscription id.
	Subscriptions map[string]string
	AutoCreate    bool
	AckDeadline   time.Duration
}

// Names maps logical topics to Pub/Sub resource paths.
type Names struct {
	ProjectID     string
	TopicPrefix   string
	Subscriptions map[string]string
}

func (n Names) TopicID(topic string) string {
	return n.TopicPrefix + strings.ReplaceAll(topic, ".", "-")
}

func (n Names) SubscriptionID(topic string) string {
	if id := n.Subscriptions[topic]; id != "" {
		return id
	}
	if id := n.Subscriptions["default"]; id != "" {
		return id
	}
	return n.TopicID(topic) + "-sub"
}

func (n Names) TopicPath(topic string) string {
	return fmt.Sprintf("projects/%s/topics/%s", n.ProjectID, n.TopicID(topic))
}

func (n Names) SubscriptionPath(topic string) string {
	return fmt.Sprintf("projects/%s/subscriptions/%s", n.ProjectID, n.SubscriptionID(topic))
}

type Queue struct {
	pub    publisher
	sub    subscriber
	names  Names
	prov   *Provisioner
	auto   bool
	logger *slog.Logger
}

// New dials Pub/Sub with application default credentials.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Queue, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("pubsub: project id is required")
	}
	pub, err := gpubsub.NewPublisherClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher client: %w", err)
	}
	sub, err := gpubsub.NewSubscriberClient(ctx)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("pubsub subscriber client: %w", err)
	}
	return newQueue(pub, sub, cfg, logger), nil
}

func newQueue(pub publisher, sub subscriber, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	names := Names{ProjectID: cfg.ProjectID, TopicPrefix: cfg.TopicPrefix, Subscriptions: cfg.Subscriptions}
	return &Queue{
		pub:    pub,
		sub:    sub,
		names:  names,
		prov:   newProvisioner(pub, sub, names, cfg.AckDeadline),
		auto:   cfg.AutoCreate,
		logger: logger,
	}
}

func (q *Queue) Publish(ctx context.Context, topic string, ev event.Event) error {
	_, err := q.PublishMany(ctx, topic, []any{ev})
	return err
}

func (q *Queue) PublishMany(ctx context.Context, topic string, items []any) (int, error) {
	events := queue.Objects(items)
	if len(events) == 0 {
		return 0, nil
	}
	if q.auto {
		if err := q.prov.EnsureTopic(ctx, topic); err != nil {
			return 0, err
		}
	}

	msgs := make([]*pubsubpb.PubsubMessage, 0, len(events))
	for _, ev := range events {
		data, err := ev.Encode()
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, &pubsubpb.PubsubMessage{Data: data})
	}

	_, err := q.pub.Publish(ctx, &pubsubpb.PublishRequest{
		Topic:    q.names.TopicPath(topic),
		Messages: msgs,
	})
	if err != nil {
		return 0, fmt.Errorf("pubsub publish %s: %w", topic, err)
	}
	return len(msgs), nil
}

// Size is not exposed by the Pub/Sub data plane.
func (q *Queue) Size(context.Context, string) queue.Depth {
	return queue.Unknown
}

// ConsumeBatch pulls once, bounded by wait, and acknowledges every received message after
// decoding. Malformed payloads are acknowledged and dropped.
func (q *Queue) ConsumeBatch(ctx context.Context, topic string, maxMessages int, wait time.Duration) ([]event.Event, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	if q.auto {
		if err := q.prov.EnsureSubscription(ctx, topic); err != nil {
			return nil, err
		}
	}
	subPath := q.names.SubscriptionPath(topic)

	pullCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	resp, err := q.sub.Pull(pullCtx, &pubsubpb.PullRequest{
		Subscription: subPath,
		MaxMessages:  int32(maxMessages),
	})
	if err != nil {
		return nil, fmt.Errorf("pubsub pull %s: %w", subPath, err)
	}

	received := resp.GetReceivedMessages()
	if len(received) == 0 {
		return nil, nil
	}

	events := make([]event.Event, 0, len(received))
	ackIDs := make([]string, 0, len(received))
	for _, rm := range received {
		ackIDs = append(ackIDs, rm.GetAckId())
		ev, err := event.Decode(rm.GetMessage().GetData())
		if err != nil {
			q.logger.Debug("dropping malformed message", "subscription", subPath, "error", err)
			continue
		}
		events = append(events, ev)
	}

	if err := q.sub.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: subPath,
		AckIds:       ackIDs,
	}); err != nil {
		// The messages will be redelivered; dedupe absorbs the repeat.
		q.logger.Warn("pubsub acknowledge failed", "subscription", subPath, "error", err)
	}
	return events, nil
}

func (q *Queue) Close() error {
	subErr := q.sub.Close()
	if err := q.pub.Close(); err != nil {
		return fmt.Errorf("close publisher: %w", err)
	}
	if subErr != nil {
		return fmt.Errorf("close subscriber: %w", subErr)
	}
	return nil
}

// Provisioner returns the topic and subscription provisioner bound to this queue's clients.
func (q *Queue) Provisioner() *Provisioner { return q.prov }
