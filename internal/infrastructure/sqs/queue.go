// Package sqs implements the receive-and-delete queue transport on AWS SQS.
package sqs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"healthsync/internal/domain/event"
	"healthsync/internal/queue"
)

// SQS service limits for a single ReceiveMessage call.
const (
	maxReceiveMessages = 10
	maxWaitSeconds     = 20
)

type api interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type Config struct {
	Region   string
	Endpoint string
	// URLs maps a logical topic (or "default") to a queue URL.
	URLs map[string]string
}

type Queue struct {
	client api
	urls   map[string]string
	logger *slog.Logger
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Queue, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("sqs: no queue urls configured")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newQueue(client, cfg.URLs, logger), nil
}

func newQueue(client api, urls map[string]string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, urls: urls, logger: logger}
}

func (q *Queue) url(topic string) (string, error) {
	if u := q.urls[topic]; u != "" {
		return u, nil
	}
	if u := q.urls["default"]; u != "" {
		return u, nil
	}
	return "", fmt.Errorf("sqs: no queue url for topic %s", topic)
}

func (q *Queue) Publish(ctx context.Context, topic string, ev event.Event) error {
	_, err := q.PublishMany(ctx, topic, []any{ev})
	return err
}

// PublishMany sends one message per object item. On failure the count reflects what was
// already sent.
func (q *Queue) PublishMany(ctx context.Context, topic string, items []any) (int, error) {
	events := queue.Objects(items)
	if len(events) == 0 {
		return 0, nil
	}
	u, err := q.url(topic)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		body, err := ev.Encode()
		if err != nil {
			return sent, err
		}
		_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(u),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			return sent, fmt.Errorf("sqs send %s: %w", topic, err)
		}
		sent++
	}
	return sent, nil
}

// Size reports ApproximateNumberOfMessages, or Unknown when the lookup fails.
func (q *Queue) Size(ctx context.Context, topic string) queue.Depth {
	u, err := q.url(topic)
	if err != nil {
		return queue.Unknown
	}
	out, err := q.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(u),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		q.logger.Debug("sqs queue attributes unavailable", "topic", topic, "error", err)
		return queue.Unknown
	}
	n, err := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	if err != nil {
		return queue.Unknown
	}
	return queue.KnownDepth(n)
}

// ConsumeBatch long-polls once and deletes each message as soon as it is decoded.
// Malformed bodies are deleted and dropped.
func (q *Queue) ConsumeBatch(ctx context.Context, topic string, maxMessages int, wait time.Duration) ([]event.Event, error) {
	u, err := q.url(topic)
	if err != nil {
		return nil, err
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(u),
		MaxNumberOfMessages: int32(clamp(maxMessages, 1, maxReceiveMessages)),
		WaitTimeSeconds:     int32(clamp(int(wait/time.Second), 0, maxWaitSeconds)),
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive %s: %w", topic, err)
	}

	events := make([]event.Event, 0, len(out.Messages))
	for _, m := range out.Messages {
		ev, decodeErr := event.Decode([]byte(aws.ToString(m.Body)))

		if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(u),
			ReceiptHandle: m.ReceiptHandle,
		}); err != nil {
			q.logger.Warn("sqs delete failed", "topic", topic, "message_id", aws.ToString(m.MessageId), "error", err)
		}

		if decodeErr != nil {
			q.logger.Debug("dropping malformed message", "topic", topic, "message_id", aws.ToString(m.MessageId), "error", decodeErr)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close is a no-op; the SDK client holds no long-lived connections that need releasing.
func (q *Queue) Close() error { return nil }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
