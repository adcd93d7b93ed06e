// Package provider holds the fixed set of data providers and their push and pull capabilities.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"healthsync/internal/domain/credential"
	"healthsync/internal/queue"
)

type Kind string

const (
	Fitbit Kind = "fitbit"
	Google Kind = "google"
	Apple  Kind = "apple"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNotSupported    = errors.New("operation not supported by provider")
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Fitbit, Google, Apple:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// Receipt acknowledges a webhook delivery. QueueDepth is nil for providers that queue nothing.
type Receipt struct {
	Status     string       `json:"status"`
	Queued     int          `json:"queued"`
	Topic      string       `json:"topic,omitempty"`
	QueueDepth *queue.Depth `json:"queue_depth,omitempty"`
	Provider   string       `json:"provider,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

const (
	StatusReceived     = "received"
	StatusNotSupported = "not_supported"
)

// PushCapable providers deliver change notifications to the webhook.
type PushCapable interface {
	IsValidVerificationCode(code string) bool
	IngestNotifications(ctx context.Context, body any) (Receipt, error)
}

type PullRequest struct {
	UserID    string
	Token     credential.Token
	Metrics   []string
	Start     string
	End       string
	TimeStart string
	TimeEnd   string
}

// PullCapable providers serve on-demand metric reads. Payloads are returned as the provider
// sent them, keyed by metric.
type PullCapable interface {
	FetchMetrics(ctx context.Context, req PullRequest) (map[string]any, error)
}

// Registry resolves a provider kind to its capabilities. It is built once at startup and
// read-only afterwards.
type Registry struct {
	push map[Kind]PushCapable
	pull map[Kind]PullCapable
}

func NewRegistry(push map[Kind]PushCapable, pull map[Kind]PullCapable) *Registry {
	return &Registry{push: push, pull: pull}
}

func (r *Registry) Push(name string) (PushCapable, error) {
	k, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	p, ok := r.push[k]
	if !ok {
		return nil, fmt.Errorf("no push service for %s: %w", k, ErrUnknownProvider)
	}
	return p, nil
}

func (r *Registry) Pull(name string) (PullCapable, error) {
	k, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	p, ok := r.pull[k]
	if !ok {
		return nil, fmt.Errorf("no pull service for %s: %w", k, ErrUnknownProvider)
	}
	return p, nil
}
