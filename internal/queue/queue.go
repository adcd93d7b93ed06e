// Package queue defines the transport-neutral publish/consume contract used by the
// webhook ingestion path and the worker, plus the in-memory transport.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"healthsync/internal/domain/event"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend names accepted by QUEUE_BACKEND.
const (
	BackendMemory = "memory"
	BackendKafka  = "kafka"
	BackendPubSub = "gcp_pubsub"
	BackendSQS    = "aws_sqs"
)

// Client delivers events at-least-once. Transport delivery metadata (offsets, ack ids,
// receipt handles) never leaves the implementation.
type Client interface {
	Publish(ctx context.Context, topic string, ev event.Event) error
	// PublishMany enqueues the items that are JSON objects and returns how many were enqueued.
	PublishMany(ctx context.Context, topic string, items []any) (int, error)
	// Size is a best-effort depth; transports that cannot report it cheaply return Unknown.
	Size(ctx context.Context, topic string) Depth
	ConsumeBatch(ctx context.Context, topic string, maxMessages int, wait time.Duration) ([]event.Event, error)
	Close() error
}

// Depth is an optional queue depth. The zero value is unknown.
type Depth struct {
	Value int
	Known bool
}

func KnownDepth(n int) Depth { return Depth{Value: n, Known: true} }

var Unknown = Depth{}

func (d Depth) String() string {
	if !d.Known {
		return "unknown"
	}
	return strconv.Itoa(d.Value)
}

func (d Depth) MarshalJSON() ([]byte, error) {
	if !d.Known {
		return []byte("null"), nil
	}
	return json.Marshal(d.Value)
}

// Objects filters items down to the JSON objects among them.
func Objects(items []any) []event.Event {
	out := make([]event.Event, 0, len(items))
	for _, item := range items {
		if ev, ok := event.FromAny(item); ok {
			out = append(out, ev)
		}
	}
	return out
}

// ConfigError reports a queue backend that could not be constructed from configuration.
type ConfigError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("queue backend %q: %s", e.Backend, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsIdleTimeout reports whether err means "no message was ready before the wait ran out"
// rather than a transport fault.
func IsIdleTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.DeadlineExceeded {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timed out")
}
