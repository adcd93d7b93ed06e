package pipeline

import (
	"time"

	"healthsync/internal/domain/event"
)

// Parse wraps ev in a new Context. It never fails.
func (p *Pipeline) Parse(ev event.Event) *Context {
	return &Context{
		Event:      ev,
		ReceivedAt: p.now().UTC(),
		RetryCount: ev.RetryCount(),
		Provider:   p.provider,
	}
}

func defaultNow() time.Time { return time.Now() }
