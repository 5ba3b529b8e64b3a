package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-memory sliding window. Single
// process only; use the Redis store when running multiple replicas.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	// Drop expired timestamps before counting.
	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.windows[key] = kept

	if len(kept) >= limit {
		return &Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: kept[0].Add(window).Sub(now),
		}, nil
	}

	s.windows[key] = append(kept, now)
	return &Result{
		Allowed:   true,
		Remaining: limit - len(s.windows[key]),
	}, nil
}
