package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"healthsync/internal/domain/event"
)

type record struct {
	ProcessedAt time.Time   `json:"processed_at"`
	Event       event.Event `json:"event"`
	Details     *Details    `json:"details"`
	DedupeKey   string      `json:"dedupe_key"`
}

// Persist appends one JSON line for c to the output log. Records are never deduplicated here.
func (p *Pipeline) Persist(c *Context) error {
	line, err := json.Marshal(record{
		ProcessedAt: p.now().UTC(),
		Event:       c.Event,
		Details:     c.Details,
		DedupeKey:   c.DedupeKey,
	})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	if dir := filepath.Dir(p.outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.OpenFile(p.outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open output log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output log: %w", err)
	}
	return nil
}
