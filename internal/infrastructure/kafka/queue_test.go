package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"healthsync/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

type stubWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

// stubReader replays values, then blocks until the context ends.
type stubReader struct {
	values [][]byte
	err    error
	closed bool
}

func (r *stubReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.values) > 0 {
		v := r.values[0]
		r.values = r.values[1:]
		return kafka.Message{Value: v}, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *stubReader) Close() error {
	r.closed = true
	return nil
}

func TestPublishManyRoutesByTopicAndSkipsNonObjects(t *testing.T) {
	w := &stubWriter{}
	q := newQueue(w, nil, nil)

	n, err := q.PublishMany(context.Background(), "fitbit.notifications.raw", []any{
		map[string]any{"date": "2026-02-10"},
		"not-an-object",
		event.Event{"date": "2026-02-11"},
	})
	if err != nil {
		t.Fatalf("publish many: %v", err)
	}
	if n != 2 || len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got n=%d msgs=%d", n, len(w.msgs))
	}
	for _, m := range w.msgs {
		if m.Topic != "fitbit.notifications.raw" {
			t.Fatalf("unexpected topic %q", m.Topic)
		}
	}
	if q.Size(context.Background(), "fitbit.notifications.raw").Known {
		t.Fatalf("kafka depth must be unknown")
	}
}

func TestPublishManyPropagatesWriteErrors(t *testing.T) {
	q := newQueue(&stubWriter{err: errors.New("broker down")}, nil, nil)
	if _, err := q.PublishMany(context.Background(), "raw", []any{map[string]any{}}); err == nil {
		t.Fatalf("expected write error")
	}
}

func TestConsumeBatchDecodesAndReusesReader(t *testing.T) {
	reader := &stubReader{values: [][]byte{
		[]byte(`{"subscriptionId":"u1-sub"}`),
		[]byte(`"junk"`),
		[]byte(`{"subscriptionId":"u2-sub"}`),
	}}
	created := 0
	q := newQueue(&stubWriter{}, func(string) messageReader {
		created++
		return reader
	}, nil)

	events, err := q.ConsumeBatch(context.Background(), "raw", 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected malformed message dropped, got %v", events)
	}

	empty, err := q.ConsumeBatch(context.Background(), "raw", 10, 10*time.Millisecond)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected idle empty batch, got %v %v", empty, err)
	}
	if created != 1 {
		t.Fatalf("expected one reader per topic, created %d", created)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !reader.closed {
		t.Fatalf("reader not closed")
	}
}

func TestConsumeBatchStopsAtMax(t *testing.T) {
	reader := &stubReader{values: [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`), []byte(`{"n":3}`)}}
	q := newQueue(&stubWriter{}, func(string) messageReader { return reader }, nil)

	events, err := q.ConsumeBatch(context.Background(), "raw", 2, time.Second)
	if err != nil || len(events) != 2 {
		t.Fatalf("expected 2 events, got %v %v", events, err)
	}
	if len(reader.values) != 1 {
		t.Fatalf("reader consumed past the batch size")
	}
}

func TestConsumeBatchSurfacesReadErrors(t *testing.T) {
	reader := &stubReader{err: errors.New("group coordinator not available")}
	q := newQueue(&stubWriter{}, func(string) messageReader { return reader }, nil)

	if _, err := q.ConsumeBatch(context.Background(), "raw", 5, time.Second); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestStartOffset(t *testing.T) {
	if startOffset("latest") != kafka.LastOffset || startOffset("") != kafka.FirstOffset {
		t.Fatalf("unexpected start offsets")
	}
}
