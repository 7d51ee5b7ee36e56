package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps sliding window logs in process memory.
//
// It is NOT shared between processes: with several server instances each
// one enforces the limit independently, multiplying the effective budget.
// Use it for single-instance deployments and local development only.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*logEntry
}

// logEntry holds admitted hit timestamps in ascending order.
type logEntry struct {
	hits   []time.Time
	window time.Duration
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*logEntry)}
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, limit int, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &logEntry{}
		s.entries[key] = e
	}
	e.window = window
	e.prune(now)

	admitted := false
	if len(e.hits) < limit {
		e.hits = append(e.hits, now)
		admitted = true
	}

	oldest := now
	if len(e.hits) > 0 {
		oldest = e.hits[0]
	}
	return Window{Admitted: admitted, Count: len(e.hits), Oldest: oldest}, nil
}

// prune drops hits that are window or more in the past.
func (e *logEntry) prune(now time.Time) {
	i := 0
	for i < len(e.hits) && now.Sub(e.hits[i]) >= e.window {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
}

// Cleanup removes keys whose logs have fully expired.
func (s *MemoryStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		e.prune(now)
		if len(e.hits) == 0 {
			delete(s.entries, key)
		}
	}
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// StartCleanup runs Cleanup every interval until ctx is cancelled.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.Cleanup(now)
			}
		}
	}()
}
