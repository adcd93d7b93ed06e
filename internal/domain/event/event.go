package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Conventional notification fields.
const (
	FieldOwnerID        = "ownerId"
	FieldSubscriptionID = "subscriptionId"
	FieldCollectionType = "collectionType"
	FieldDate           = "date"
	FieldRetryCount     = "retry_count"
	FieldLastError      = "last_error"
)

// Event is a provider notification as received on the webhook.
// It is treated as immutable once published; use Clone before changing fields.
type Event map[string]any

// FromAny returns v as an Event when it is a JSON object.
func FromAny(v any) (Event, bool) {
	switch m := v.(type) {
	case Event:
		return m, m != nil
	case map[string]any:
		return Event(m), m != nil
	default:
		return nil, false
	}
}

// Decode parses a transport payload. Anything that is not a JSON object is rejected.
func Decode(data []byte) (Event, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	ev, ok := FromAny(v)
	if !ok {
		return nil, fmt.Errorf("decode event: payload is %T, not an object", v)
	}
	return ev, nil
}

// Encode serializes the event for a transport.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(map[string]any(e))
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

// String returns the field rendered as text, or "" when absent or null.
func (e Event) String(key string) string {
	v, ok := e[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// RetryCount returns retry_count, defaulting to 0 when absent or not a number.
func (e Event) RetryCount() int {
	switch v := e[FieldRetryCount].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Clone returns a shallow copy.
func (e Event) Clone() Event {
	out := make(Event, len(e)+2)
	for k, v := range e {
		out[k] = v
	}
	return out
}

// WithFailure returns a copy carrying the next retry generation and the failure cause.
func (e Event) WithFailure(cause error) Event {
	out := e.Clone()
	out[FieldRetryCount] = e.RetryCount() + 1
	if cause != nil {
		out[FieldLastError] = cause.Error()
	}
	return out
}
