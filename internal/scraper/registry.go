// Package scraper maps platform names to their scraping adapters.
package scraper

import (
	"sort"
	"sync"

	"github.com/eventscout/eventscout/internal/scout"
)

// Registry resolves a platform name to its Scraper. Registration happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	scrapers map[string]scout.Scraper
}

// NewRegistry creates a registry preloaded with the given scrapers.
func NewRegistry(scrapers ...scout.Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]scout.Scraper)}
	for _, s := range scrapers {
		r.Register(s)
	}
	return r
}

// Register adds a scraper, replacing any previous one for the same platform.
func (r *Registry) Register(s scout.Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.Platform()] = s
}

// Lookup returns the scraper for a platform.
func (r *Registry) Lookup(platform string) (scout.Scraper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scrapers[platform]
	return s, ok
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scrapers))
	for name := range r.scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
