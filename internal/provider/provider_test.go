package provider

import (
	"context"
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" Fitbit "); err != nil || k != Fitbit {
		t.Fatalf("expected fitbit, got %q %v", k, err)
	}
	if _, err := ParseKind("garmin"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		map[Kind]PushCapable{Google: UnsupportedPush{Kind: Google, Detail: "no push"}},
		map[Kind]PullCapable{Apple: UnsupportedPull{Kind: Apple, Reason: "device uploads only"}},
	)

	push, err := r.Push("google")
	if err != nil {
		t.Fatalf("push lookup: %v", err)
	}
	if push.IsValidVerificationCode("anything") {
		t.Fatalf("unsupported push must reject verification")
	}
	receipt, err := push.IngestNotifications(context.Background(), map[string]any{"x": 1})
	if err != nil || receipt.Status != StatusNotSupported || receipt.Provider != "google" {
		t.Fatalf("unexpected receipt %+v %v", receipt, err)
	}
	if receipt.QueueDepth != nil || receipt.Queued != 0 {
		t.Fatalf("unsupported push must not queue, got %+v", receipt)
	}

	if _, err := r.Push("apple"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected missing push service error, got %v", err)
	}

	pull, err := r.Pull("APPLE")
	if err != nil {
		t.Fatalf("pull lookup: %v", err)
	}
	if _, err := pull.FetchMetrics(context.Background(), PullRequest{}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}
