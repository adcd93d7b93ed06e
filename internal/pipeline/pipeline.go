package pipeline

import (
	"fmt"
	"time"

	"healthsync/internal/domain/credential"
)

type Config struct {
	Provider       string
	DefaultUserID  string
	OutputPath     string
	DedupeCapacity int
	// Now overrides the clock used for received_at and processed_at.
	Now func() time.Time
}

// Pipeline holds the stage state for one worker process. It is not safe for concurrent use.
type Pipeline struct {
	provider      string
	defaultUserID string
	outputPath    string
	now           func() time.Time

	seen        *seenSet
	credentials credential.Store
	api         ProviderAPI
}

func New(cfg Config, credentials credential.Store, api ProviderAPI) (*Pipeline, error) {
	seen, err := newSeenSet(cfg.DedupeCapacity)
	if err != nil {
		return nil, fmt.Errorf("dedupe set: %w", err)
	}
	if cfg.Provider == "" {
		cfg.Provider = "fitbit"
	}
	if cfg.DefaultUserID == "" {
		cfg.DefaultUserID = "me"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "worker_processed_events.jsonl"
	}
	if cfg.Now == nil {
		cfg.Now = defaultNow
	}
	return &Pipeline{
		provider:      cfg.Provider,
		defaultUserID: cfg.DefaultUserID,
		outputPath:    cfg.OutputPath,
		now:           cfg.Now,
		seen:          seen,
		credentials:   credentials,
		api:           api,
	}, nil
}

// SeenKeys is the number of dedupe keys currently remembered.
func (p *Pipeline) SeenKeys() int { return p.seen.Len() }
