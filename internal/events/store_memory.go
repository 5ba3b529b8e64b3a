package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOutbox is the in-memory event sink for unit tests and the
// no-database demo mode.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries []Entry
	events  []Event
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (s *MemoryOutbox) Record(_ context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal contact event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.entries = append(s.entries, Entry{
		ID:        event.ID,
		EventType: event.Type,
		Payload:   payload,
		CreatedAt: event.OccurredAt,
	})
	return nil
}

func (s *MemoryOutbox) ListUnpublished(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(limit, len(s.entries))
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *MemoryOutbox) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		published[id] = struct{}{}
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if _, ok := published[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

// Events returns everything recorded so far. Test helper.
func (s *MemoryOutbox) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}
