package queue

import (
	"context"
	"sync"
	"time"

	"healthsync/internal/domain/event"
)

// Memory is a single-process FIFO per topic. All topic state sits behind one mutex, so
// producers may publish from any goroutine while the worker consumes.
type Memory struct {
	mu     sync.Mutex
	topics map[string][]event.Event
}

func NewMemory() *Memory {
	return &Memory{topics: make(map[string][]event.Event)}
}

func (m *Memory) Publish(_ context.Context, topic string, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics[topic] = append(m.topics[topic], ev)
	return nil
}

func (m *Memory) PublishMany(_ context.Context, topic string, items []any) (int, error) {
	events := Objects(items)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics[topic] = append(m.topics[topic], events...)
	return len(events), nil
}

func (m *Memory) Size(_ context.Context, topic string) Depth {
	m.mu.Lock()
	defer m.mu.Unlock()

	return KnownDepth(len(m.topics[topic]))
}

// ConsumeBatch pops up to maxMessages without blocking; an empty topic returns at once
// and the worker's idle sleep provides the wait.
func (m *Memory) ConsumeBatch(_ context.Context, topic string, maxMessages int, _ time.Duration) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.topics[topic]
	n := len(pending)
	if maxMessages > 0 && n > maxMessages {
		n = maxMessages
	}
	if n == 0 {
		return nil, nil
	}

	batch := make([]event.Event, n)
	copy(batch, pending[:n])

	rest := pending[n:]
	if len(rest) == 0 {
		delete(m.topics, topic)
	} else {
		m.topics[topic] = append([]event.Event(nil), rest...)
	}
	return batch, nil
}

// Drain removes and returns everything queued on topic.
func (m *Memory) Drain(topic string) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.topics[topic]
	delete(m.topics, topic)
	return events
}

func (m *Memory) Close() error { return nil }

// ProcessLocal reports whether c keeps messages inside this process, so producers and
// consumers running as separate processes never share them.
func ProcessLocal(c Client) bool {
	_, ok := c.(*Memory)
	return ok
}
