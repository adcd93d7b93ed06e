package pipeline

import (
	"strings"

	"healthsync/internal/domain/event"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultDedupeCapacity = 100_000

// DedupeKey fingerprints an event's identity fields. Missing fields are empty strings.
func DedupeKey(provider string, ev event.Event) string {
	return strings.Join([]string{
		provider,
		ev.String(event.FieldOwnerID),
		ev.String(event.FieldSubscriptionID),
		ev.String(event.FieldCollectionType),
		ev.String(event.FieldDate),
	}, "|")
}

// seenSet remembers, per dedupe key, the highest retry generation admitted. Capacity is
// fixed; the least recently seen keys are evicted first.
type seenSet struct {
	cache *lru.Cache[string, int]
}

func newSeenSet(capacity int) (*seenSet, error) {
	if capacity <= 0 {
		capacity = DefaultDedupeCapacity
	}
	c, err := lru.New[string, int](capacity)
	if err != nil {
		return nil, err
	}
	return &seenSet{cache: c}, nil
}

// admit reports whether (key, generation) is new and records it if so. A key already admitted
// at the same or a later generation is a duplicate.
func (s *seenSet) admit(key string, generation int) bool {
	if seen, ok := s.cache.Get(key); ok && seen >= generation {
		return false
	}
	s.cache.Add(key, generation)
	return true
}

func (s *seenSet) Len() int { return s.cache.Len() }

// Dedupe sets DedupeKey and IsDuplicate. It never fails.
func (p *Pipeline) Dedupe(c *Context) {
	c.DedupeKey = DedupeKey(c.Provider, c.Event)
	c.IsDuplicate = !p.seen.admit(c.DedupeKey, c.RetryCount)
}
