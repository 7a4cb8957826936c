package static

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventscout/eventscout/internal/scout"
)

func catalog() []scout.Event {
	starts := time.Date(2026, 3, 5, 19, 0, 0, 0, time.UTC)
	return []scout.Event{
		{ID: "fx-1", Title: "React Berlin", City: "berlin", StartsAt: starts, SourceURL: "https://meetup.com/fx-1"},
		{ID: "fx-2", Title: "Go Hamburg", City: "hamburg", StartsAt: starts, SourceURL: "https://meetup.com/fx-2"},
		{ID: "fx-3", Title: "Rust Workshop", Description: "systems programming in berlin", City: "berlin", StartsAt: starts, SourceURL: "https://meetup.com/fx-3"},
	}
}

func TestScrapeFiltersByQueryAndCity(t *testing.T) {
	t.Parallel()

	s := New("meetup", catalog())
	require.Equal(t, "meetup", s.Platform())

	events, err := s.Scrape(context.Background(), "react", "berlin")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "fx-1", events[0].ID)
	require.Equal(t, "meetup", events[0].Platform)
}

func TestScrapeMatchesDescription(t *testing.T) {
	t.Parallel()

	s := New("meetup", catalog())
	events, err := s.Scrape(context.Background(), "systems", "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "fx-3", events[0].ID)
}

func TestScrapeEmptyQueryReturnsCityCatalog(t *testing.T) {
	t.Parallel()

	s := New("meetup", catalog())
	events, err := s.Scrape(context.Background(), "", "berlin")
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestScrapeNoMatches(t *testing.T) {
	t.Parallel()

	s := New("meetup", catalog())
	events, err := s.Scrape(context.Background(), "cobol", "berlin")
	require.NoError(t, err)
	require.Empty(t, events)
}
