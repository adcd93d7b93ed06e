package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Provisioner creates missing topics and subscriptions. Resources it has confirmed are
// remembered so the lookup happens once per process.
type Provisioner struct {
	pub         publisher
	sub         subscriber
	names       Names
	ackDeadline time.Duration

	mu    sync.Mutex
	known map[string]bool
}

func newProvisioner(pub publisher, sub subscriber, names Names, ackDeadline time.Duration) *Provisioner {
	if ackDeadline <= 0 {
		ackDeadline = 60 * time.Second
	}
	return &Provisioner{
		pub:         pub,
		sub:         sub,
		names:       names,
		ackDeadline: ackDeadline,
		known:       make(map[string]bool),
	}
}

func (p *Provisioner) seen(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.known[path]
}

func (p *Provisioner) remember(path string) {
	p.mu.Lock()
	p.known[path] = true
	p.mu.Unlock()
}

// EnsureTopic creates the topic for a logical name if it does not exist.
func (p *Provisioner) EnsureTopic(ctx context.Context, topic string) error {
	path := p.names.TopicPath(topic)
	if p.seen(path) {
		return nil
	}

	_, err := p.pub.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: path})
	switch {
	case err == nil:
	case status.Code(err) == codes.NotFound:
		if _, err := p.pub.CreateTopic(ctx, &pubsubpb.Topic{Name: path}); err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create topic %s: %w", path, err)
		}
	default:
		return fmt.Errorf("get topic %s: %w", path, err)
	}

	p.remember(path)
	return nil
}

// EnsureSubscription creates the topic and its subscription if either is missing.
func (p *Provisioner) EnsureSubscription(ctx context.Context, topic string) error {
	path := p.names.SubscriptionPath(topic)
	if p.seen(path) {
		return nil
	}
	if err := p.EnsureTopic(ctx, topic); err != nil {
		return err
	}

	_, err := p.sub.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: path})
	switch {
	case err == nil:
	case status.Code(err) == codes.NotFound:
		_, err := p.sub.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:               path,
			Topic:              p.names.TopicPath(topic),
			AckDeadlineSeconds: int32(p.ackDeadline / time.Second),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create subscription %s: %w", path, err)
		}
	default:
		return fmt.Errorf("get subscription %s: %w", path, err)
	}

	p.remember(path)
	return nil
}
