package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"healthsync/internal/domain/credential"
	"healthsync/internal/domain/event"
	"healthsync/internal/infrastructure/memory"
	"healthsync/internal/pipeline"
	"healthsync/internal/queue"
)

var topics = Topics{
	Raw:   "fitbit.notifications.raw",
	Retry: "fitbit.notifications.retry",
	DLQ:   "fitbit.notifications.dlq",
}

type stubAPI struct {
	sleepCalls int
}

func (s *stubAPI) Steps(context.Context, string, string, string) ([]any, error)    { return []any{}, nil }
func (s *stubAPI) Calories(context.Context, string, string, string) ([]any, error) { return []any{}, nil }
func (s *stubAPI) Weight(context.Context, string, string, string) ([]any, error)   { return []any{}, nil }
func (s *stubAPI) HRV(context.Context, string, string) (map[string]any, error)     { return map[string]any{}, nil }

func (s *stubAPI) Sleep(context.Context, string, string, string) (map[string]any, error) {
	s.sleepCalls++
	return map[string]any{"sleep": []any{map[string]any{"logId": 1.0}}}, nil
}

type harness struct {
	q      *queue.Memory
	api    *stubAPI
	store  *memory.CredentialStore
	out    string
	worker *Worker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		q:     queue.NewMemory(),
		api:   &stubAPI{},
		store: memory.NewCredentialStore(),
		out:   filepath.Join(t.TempDir(), "processed.jsonl"),
	}
	p, err := pipeline.New(pipeline.Config{OutputPath: h.out}, h.store, h.api)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	h.worker = New(h.q, p, Config{
		Topics:       topics,
		MaxRetries:   3,
		BatchSize:    25,
		PollInterval: 5 * time.Millisecond,
		Timing:       Timing{Enabled: true, Level: ParseLevel("debug"), WarnAfter: time.Second},
	}, nil)
	return h
}

func (h *harness) readOutput(t *testing.T) []map[string]any {
	t.Helper()
	f, err := os.Open(h.out)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatal(err)
		}
		out = append(out, m)
	}
	return out
}

func TestEndToEndSleepNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Put(ctx, "fitbit", "u1", credential.Token{AccessToken: "tok"})

	_ = h.q.Publish(ctx, topics.Raw, event.Event{
		"subscriptionId": "u1-sub",
		"collectionType": "sleep",
		"date":           "2026-02-10",
	})

	if n := h.worker.Cycle(ctx); n != 1 {
		t.Fatalf("expected one event handled, got %d", n)
	}

	lines := h.readOutput(t)
	if len(lines) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(lines))
	}
	rec := lines[0]
	if rec["dedupe_key"] != "fitbit||u1-sub|sleep|2026-02-10" {
		t.Fatalf("unexpected dedupe key %v", rec["dedupe_key"])
	}
	details := rec["details"].(map[string]any)
	if details["user_id"] != "u1" || details["sleep"] == nil {
		t.Fatalf("unexpected details %v", details)
	}
	if h.api.sleepCalls != 1 {
		t.Fatalf("expected one sleep fetch, got %d", h.api.sleepCalls)
	}
}

func TestDuplicateSkipsFetchAndPersist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.store.Put(ctx, "fitbit", "u1", credential.Token{AccessToken: "tok"})

	ev := event.Event{"ownerId": "A", "subscriptionId": "u1-sub", "collectionType": "sleep", "date": "2026-02-10"}
	_, _ = h.q.PublishMany(ctx, topics.Raw, []any{ev, ev.Clone()})

	h.worker.Cycle(ctx)

	if h.api.sleepCalls != 1 {
		t.Fatalf("duplicate must not fetch, got %d calls", h.api.sleepCalls)
	}
	if lines := h.readOutput(t); len(lines) != 1 {
		t.Fatalf("duplicate must not persist, got %d lines", len(lines))
	}
	if d := h.q.Size(ctx, topics.Retry); d.Value != 0 {
		t.Fatalf("duplicate must not be retried")
	}
}

func TestFailureEscalation(t *testing.T) {
	cases := []struct {
		retryCount int
		topic      string
	}{
		{0, topics.Retry},
		{2, topics.Retry},
		{3, topics.DLQ},
		{7, topics.DLQ},
	}
	for _, tc := range cases {
		h := newHarness(t)
		ctx := context.Background()

		// No credentials stored: the fetch stage fails.
		_ = h.q.Publish(ctx, topics.Raw, event.Event{
			"subscriptionId": "ghost-sub",
			"collectionType": "sleep",
			"date":           "2026-02-10",
			"retry_count":    tc.retryCount,
		})
		h.worker.drain(ctx, topics.Raw)

		got := h.q.Drain(tc.topic)
		if len(got) != 1 {
			t.Fatalf("retry_count=%d: expected one event on %s, got %v", tc.retryCount, tc.topic, got)
		}
		if got[0].RetryCount() != tc.retryCount+1 {
			t.Fatalf("retry_count=%d: expected %d, got %d", tc.retryCount, tc.retryCount+1, got[0].RetryCount())
		}
		if got[0].String(event.FieldLastError) == "" {
			t.Fatalf("last_error not attached")
		}
	}
}

func TestRetryLineageReachesDLQ(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_ = h.q.Publish(ctx, topics.Raw, event.Event{"subscriptionId": "ghost-sub", "collectionType": "body", "date": "2026-02-10"})

	for i := 0; i < 10; i++ {
		h.worker.Cycle(ctx)
	}

	dlq := h.q.Drain(topics.DLQ)
	if len(dlq) != 1 || dlq[0].RetryCount() != 4 {
		t.Fatalf("expected the lineage to dead-letter at retry_count 4, got %v", dlq)
	}
	if h.q.Size(ctx, topics.Retry).Value != 0 || h.q.Size(ctx, topics.Raw).Value != 0 {
		t.Fatalf("expected raw and retry drained")
	}
}

func TestRetrySucceedsOnceCredentialsArrive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_ = h.q.Publish(ctx, topics.Raw, event.Event{"subscriptionId": "u1-sub", "collectionType": "sleep", "date": "2026-02-10"})
	h.worker.drain(ctx, topics.Raw)

	_ = h.store.Put(ctx, "fitbit", "u1", credential.Token{AccessToken: "tok"})
	h.worker.drain(ctx, topics.Retry)

	lines := h.readOutput(t)
	if len(lines) != 1 {
		t.Fatalf("expected the retry to persist, got %d lines", len(lines))
	}
	ev := lines[0]["event"].(map[string]any)
	if ev["retry_count"] != 1.0 {
		t.Fatalf("expected persisted retry generation 1, got %v", ev["retry_count"])
	}
}

type erroringQueue struct {
	*queue.Memory
	err error
}

func (e erroringQueue) ConsumeBatch(context.Context, string, int, time.Duration) ([]event.Event, error) {
	return nil, e.err
}

func TestConsumeErrorsDegradeToEmptyBatch(t *testing.T) {
	for _, err := range []error{
		context.DeadlineExceeded,
		errors.New("connection reset by peer"),
	} {
		h := newHarness(t)
		h.worker.queue = erroringQueue{Memory: h.q, err: err}

		if n := h.worker.Cycle(context.Background()); n != 0 {
			t.Fatalf("%v: expected empty cycle, got %d", err, n)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}

func TestWorkerNeverConsumesDLQ(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.q.Publish(ctx, topics.DLQ, event.Event{"subscriptionId": "x"})

	h.worker.Cycle(ctx)
	if h.q.Size(ctx, topics.DLQ).Value != 1 {
		t.Fatalf("dead-letter topic must be left untouched")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("WARNING").String() != "WARN" || ParseLevel("nope").String() != "INFO" {
		t.Fatalf("unexpected level parsing")
	}
}

// cancellingAPI simulates a shutdown signal arriving while the fetch is in flight.
type cancellingAPI struct {
	stubAPI
	cancel context.CancelFunc
	calls  int
}

func (a *cancellingAPI) Sleep(ctx context.Context, _, _, _ string) (map[string]any, error) {
	a.calls++
	a.cancel()
	return nil, ctx.Err()
}

// strictQueue refuses publishes on a cancelled context, as the network transports do.
type strictQueue struct{ *queue.Memory }

func (q strictQueue) Publish(ctx context.Context, topic string, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.Memory.Publish(ctx, topic, ev)
}

func TestShutdownRequeuesInterruptedEventUnchanged(t *testing.T) {
	mem := queue.NewMemory()
	store := memory.NewCredentialStore()
	_ = store.Put(context.Background(), "fitbit", "u1", credential.Token{AccessToken: "tok"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &cancellingAPI{cancel: cancel}

	p, err := pipeline.New(pipeline.Config{OutputPath: filepath.Join(t.TempDir(), "out.jsonl")}, store, api)
	if err != nil {
		t.Fatal(err)
	}
	w := New(strictQueue{mem}, p, Config{Topics: topics, MaxRetries: 3}, nil)

	_ = mem.Publish(context.Background(), topics.Raw, event.Event{
		"subscriptionId": "u1-sub",
		"collectionType": "sleep",
		"date":           "2026-02-10",
		"retry_count":    3,
	})
	_ = mem.Publish(context.Background(), topics.Raw, event.Event{
		"subscriptionId": "u1-sub",
		"collectionType": "sleep",
		"date":           "2026-02-11",
	})
	w.drain(ctx, topics.Raw)

	if dlq := mem.Drain(topics.DLQ); len(dlq) != 0 {
		t.Fatalf("interrupted event must not be dead-lettered, got %v", dlq)
	}
	retry := mem.Drain(topics.Retry)
	if len(retry) != 2 {
		t.Fatalf("expected both events on the retry topic, got %v", retry)
	}
	if retry[0].RetryCount() != 3 || retry[0].String(event.FieldLastError) != "" {
		t.Fatalf("expected the interrupted event unchanged, got %v", retry[0])
	}
	if retry[1].RetryCount() != 0 || retry[1].String(event.FieldDate) != "2026-02-11" {
		t.Fatalf("expected the unprocessed event unchanged, got %v", retry[1])
	}
	if api.calls != 1 {
		t.Fatalf("events after shutdown must not be fetched, got %d calls", api.calls)
	}
}
