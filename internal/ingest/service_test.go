package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"healthsync/internal/domain/event"
	"healthsync/internal/provider"
	"healthsync/internal/queue"
)

const rawTopic = "fitbit.notifications.raw"

var _ provider.PushCapable = (*Service)(nil)

func TestVerificationCodes(t *testing.T) {
	s := NewService(queue.NewMemory(), rawTopic, map[string]struct{}{"abc": {}, "def": {}}, nil)

	cases := map[string]bool{"abc": true, "def": true, "": false, "xyz": false}
	for code, want := range cases {
		if got := s.IsValidVerificationCode(code); got != want {
			t.Fatalf("code %q: expected %v, got %v", code, want, got)
		}
	}

	empty := NewService(queue.NewMemory(), rawTopic, nil, nil)
	if empty.IsValidVerificationCode("abc") {
		t.Fatalf("no configured codes must reject everything")
	}
}

func TestIngestArrayQueuesObjectsOnly(t *testing.T) {
	q := queue.NewMemory()
	s := NewService(q, rawTopic, nil, nil)

	body := []any{
		map[string]any{"ownerId": "A", "collectionType": "sleep"},
		"junk",
		map[string]any{"ownerId": "B", "collectionType": "activities"},
	}
	receipt, err := s.IngestNotifications(context.Background(), body)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if receipt.Status != "received" || receipt.Queued != 2 || receipt.Topic != rawTopic {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if receipt.QueueDepth == nil || !receipt.QueueDepth.Known || receipt.QueueDepth.Value != 2 {
		t.Fatalf("expected known depth 2, got %v", receipt.QueueDepth)
	}

	events, _ := q.ConsumeBatch(context.Background(), rawTopic, 10, time.Millisecond)
	if len(events) != 2 || events[0].String("ownerId") != "A" || events[1].String("ownerId") != "B" {
		t.Fatalf("unexpected queued events %v", events)
	}
}

func TestIngestObjectAndScalars(t *testing.T) {
	s := NewService(queue.NewMemory(), rawTopic, nil, nil)

	receipt, err := s.IngestNotifications(context.Background(), map[string]any{"ownerId": "A"})
	if err != nil || receipt.Queued != 1 {
		t.Fatalf("expected one queued, got %+v %v", receipt, err)
	}

	for _, body := range []any{"text", 42.0, nil, true} {
		receipt, err := s.IngestNotifications(context.Background(), body)
		if err != nil || receipt.Queued != 0 {
			t.Fatalf("body %v: expected nothing queued, got %+v %v", body, receipt, err)
		}
	}
}

func TestReceiptJSONWithUnknownDepth(t *testing.T) {
	s := NewService(unknownDepthQueue{queue.NewMemory()}, rawTopic, nil, nil)

	receipt, err := s.IngestNotifications(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	b, _ := json.Marshal(receipt)
	want := `{"status":"received","queued":1,"topic":"fitbit.notifications.raw","queue_depth":null}`
	if string(b) != want {
		t.Fatalf("expected %s, got %s", want, b)
	}
}

func TestIngestPublishFailure(t *testing.T) {
	s := NewService(failingQueue{queue.NewMemory()}, rawTopic, nil, nil)
	if _, err := s.IngestNotifications(context.Background(), map[string]any{}); err == nil {
		t.Fatalf("expected publish error")
	}
}

type unknownDepthQueue struct{ *queue.Memory }

func (unknownDepthQueue) Size(context.Context, string) queue.Depth { return queue.Unknown }

type failingQueue struct{ *queue.Memory }

func (failingQueue) PublishMany(context.Context, string, []any) (int, error) {
	return 0, errors.New("broker unavailable")
}

func (failingQueue) Publish(context.Context, string, event.Event) error {
	return errors.New("broker unavailable")
}
