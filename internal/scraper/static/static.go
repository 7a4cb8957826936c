// Package static provides a fixture-backed scraper for development and
// tests. Real platform adapters live outside this repository and plug in
// through the same interface.
package static

import (
	"context"
	"strings"

	"github.com/eventscout/eventscout/internal/scout"
)

// Scraper serves a fixed catalog of events, filtered by query and city the
// way a real platform search would.
type Scraper struct {
	platform string
	catalog  []scout.Event
}

// New creates a static scraper for the named platform.
func New(platform string, catalog []scout.Event) *Scraper {
	events := make([]scout.Event, len(catalog))
	copy(events, catalog)
	for i := range events {
		events[i].Platform = platform
	}
	return &Scraper{platform: platform, catalog: events}
}

// Platform returns the platform name this scraper serves.
func (s *Scraper) Platform() string {
	return s.platform
}

// Scrape returns catalog entries whose title or description contains the
// query, optionally narrowed to a city.
func (s *Scraper) Scrape(_ context.Context, query, city string) ([]scout.Event, error) {
	q := strings.ToLower(query)
	var matches []scout.Event
	for _, e := range s.catalog {
		if city != "" && !strings.EqualFold(e.City, city) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(e.Title), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) {
			continue
		}
		matches = append(matches, e)
	}
	return matches, nil
}
