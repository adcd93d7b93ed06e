// Package pipeline implements the per-event processing stages: parse, dedupe, fetch details
// and persist. Stages run sequentially on a single goroutine.
package pipeline

import (
	"time"

	"healthsync/internal/domain/event"
)

// Context is the transient state of one pipeline run.
type Context struct {
	Event       event.Event
	ReceivedAt  time.Time
	RetryCount  int
	Provider    string
	DedupeKey   string
	IsDuplicate bool
	Details     *Details
}

// Details is the detail record produced by the fetch stage. Payload fields are provider-shaped
// and omitted when not fetched.
type Details struct {
	UserID         string `json:"user_id"`
	CollectionType string `json:"collectionType"`
	Date           string `json:"date"`
	Steps          any    `json:"steps,omitempty"`
	Calories       any    `json:"calories,omitempty"`
	HRV            any    `json:"hrv,omitempty"`
	Sleep          any    `json:"sleep,omitempty"`
	Weight         any    `json:"weight,omitempty"`
	Note           string `json:"note,omitempty"`
	// TokenExpired marks a fetch made with a token past its expires_at.
	TokenExpired   bool   `json:"token_expired,omitempty"`
}
