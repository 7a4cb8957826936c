// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eventscout/eventscout/internal/scout"
)

// EventStore implements scout.EventStore with a mutex-guarded slice.
type EventStore struct {
	mu     sync.RWMutex
	events []scout.Event
	byURL  map[string]struct{}
}

// NewEventStore constructs an EventStore.
func NewEventStore() *EventStore {
	return &EventStore{byURL: make(map[string]struct{})}
}

// Search returns matching events ordered by quality descending then start
// ascending, capped at filters.Limit.
func (s *EventStore) Search(_ context.Context, filters scout.SearchFilters) ([]scout.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(filters)
	cap := filters.Limit
	if cap > 0 && len(matched) > cap {
		matched = matched[:cap]
	}
	return matched, nil
}

// List returns one page of matching events plus the total count.
func (s *EventStore) List(_ context.Context, filters scout.SearchFilters, page, limit int) ([]scout.Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(filters)
	total := len(matched)

	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []scout.Event{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Upsert inserts events whose source URL is not yet known and reports how
// many were new.
func (s *EventStore) Upsert(_ context.Context, events []scout.Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, e := range events {
		if _, dup := s.byURL[e.SourceURL]; dup {
			continue
		}
		s.byURL[e.SourceURL] = struct{}{}
		s.events = append(s.events, e)
		inserted++
	}
	return inserted, nil
}

// ExistsByURL checks the dedup signal.
func (s *EventStore) ExistsByURL(_ context.Context, sourceURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[sourceURL]
	return ok, nil
}

func (s *EventStore) matchLocked(filters scout.SearchFilters) []scout.Event {
	out := make([]scout.Event, 0, len(s.events))
	for _, e := range s.events {
		if !matches(e, filters) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out
}

func matches(e scout.Event, f scout.SearchFilters) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			return false
		}
	}
	if f.City != "" && !strings.EqualFold(e.City, f.City) {
		return false
	}
	if f.EventType != "" && !strings.EqualFold(e.EventType, f.EventType) {
		return false
	}
	if f.PriceTier != "" && !strings.EqualFold(e.PriceTier, f.PriceTier) {
		return false
	}
	if f.DateFrom != nil && e.StartsAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !e.StartsAt.Before(*f.DateTo) {
		return false
	}
	return true
}
