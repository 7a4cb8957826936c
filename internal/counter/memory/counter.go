// Package memory provides an in-process counter store for development and
// testing.
package memory

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int64
	reset time.Time
}

// CounterStore implements scout.CounterStore with a mutex-guarded map.
type CounterStore struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

// New constructs a CounterStore.
func New() *CounterStore {
	return &CounterStore{
		windows: make(map[string]window),
		now:     time.Now,
	}
}

// NewWithClock constructs a CounterStore with an injected time source.
func NewWithClock(now func() time.Time) *CounterStore {
	return &CounterStore{
		windows: make(map[string]window),
		now:     now,
	}
}

// Incr atomically increments the key's counter, starting a fresh window when
// the previous one elapsed.
func (s *CounterStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.reset) {
		w = window{count: 0, reset: now.Add(windowLen)}
	}
	w.count++
	s.windows[key] = w
	return w.count, w.reset, nil
}
