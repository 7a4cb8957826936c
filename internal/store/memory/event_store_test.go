package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventscout/eventscout/internal/scout"
)

func seedEvents(t *testing.T, s *EventStore, n int) {
	t.Helper()
	events := make([]scout.Event, 0, n)
	base := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		events = append(events, scout.Event{
			ID:           fmt.Sprintf("ev-%02d", i),
			Title:        fmt.Sprintf("React Meetup #%02d", i),
			City:         "berlin",
			EventType:    "meetup",
			StartsAt:     base.Add(time.Duration(i) * time.Hour),
			SourceURL:    fmt.Sprintf("https://meetup.example/%02d", i),
			Platform:     "meetup",
			QualityScore: float64(n - i),
		})
	}
	inserted, err := s.Upsert(context.Background(), events)
	require.NoError(t, err)
	require.Equal(t, n, inserted)
}

func TestEventStoreSearchOrdersByQualityThenDate(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	_, err := s.Upsert(context.Background(), []scout.Event{
		{ID: "low", Title: "go workshop", SourceURL: "u1", QualityScore: 1, StartsAt: time.Unix(100, 0)},
		{ID: "high-late", Title: "go workshop", SourceURL: "u2", QualityScore: 9, StartsAt: time.Unix(300, 0)},
		{ID: "high-early", Title: "go workshop", SourceURL: "u3", QualityScore: 9, StartsAt: time.Unix(200, 0)},
	})
	require.NoError(t, err)

	got, err := s.Search(context.Background(), scout.SearchFilters{Query: "go workshop", Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "high-early", got[0].ID)
	require.Equal(t, "high-late", got[1].ID)
	require.Equal(t, "low", got[2].ID)
}

func TestEventStoreSearchHonorsCap(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	seedEvents(t, s, 60)

	got, err := s.Search(context.Background(), scout.SearchFilters{Query: "react", Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 50)
}

func TestEventStoreListPagination(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	seedEvents(t, s, 45)

	page, total, err := s.List(context.Background(), scout.SearchFilters{City: "berlin"}, 2, 20)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Len(t, page, 20)
	// Quality descends with insertion order here, so page 2 holds ranks 21-40.
	require.Equal(t, "ev-20", page[0].ID)
	require.Equal(t, "ev-39", page[19].ID)

	last, total, err := s.List(context.Background(), scout.SearchFilters{City: "berlin"}, 3, 20)
	require.NoError(t, err)
	require.Equal(t, 45, total)
	require.Len(t, last, 5)

	beyond, _, err := s.List(context.Background(), scout.SearchFilters{City: "berlin"}, 4, 20)
	require.NoError(t, err)
	require.Empty(t, beyond)
}

func TestEventStoreUpsertDeduplicatesBySourceURL(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	ctx := context.Background()

	inserted, err := s.Upsert(ctx, []scout.Event{
		{ID: "a", SourceURL: "https://x/1"},
		{ID: "b", SourceURL: "https://x/2"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, inserted)

	inserted, err = s.Upsert(ctx, []scout.Event{
		{ID: "c", SourceURL: "https://x/2"},
		{ID: "d", SourceURL: "https://x/3"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inserted)

	ok, err := s.ExistsByURL(ctx, "https://x/2")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.ExistsByURL(ctx, "https://x/9")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventStoreFiltersByDateRange(t *testing.T) {
	t.Parallel()

	s := NewEventStore()
	ctx := context.Background()
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	_, err := s.Upsert(ctx, []scout.Event{
		{ID: "in", SourceURL: "u1", StartsAt: from.Add(24 * time.Hour)},
		{ID: "before", SourceURL: "u2", StartsAt: from.Add(-time.Hour)},
		{ID: "after", SourceURL: "u3", StartsAt: to.Add(time.Hour)},
	})
	require.NoError(t, err)

	got, err := s.Search(ctx, scout.SearchFilters{DateFrom: &from, DateTo: &to, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "in", got[0].ID)
}
