package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cachemem "github.com/eventscout/eventscout/internal/cache/memory"
	countermem "github.com/eventscout/eventscout/internal/counter/memory"
	queuemem "github.com/eventscout/eventscout/internal/queue/memory"
	"github.com/eventscout/eventscout/internal/ratelimit"
	"github.com/eventscout/eventscout/internal/scout"
	storemem "github.com/eventscout/eventscout/internal/store/memory"
	"github.com/eventscout/eventscout/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	m.Run()
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return "job-" + string(rune('0'+g.n)), nil
}

type failingQueue struct{}

func (failingQueue) Publish(context.Context, scout.QueueMessage) error {
	return errors.New("broker unreachable")
}

func (failingQueue) Dequeue(context.Context) (scout.Delivery, error) {
	return scout.Delivery{}, errors.New("broker unreachable")
}

type unavailableEventStore struct{ *storemem.EventStore }

func (unavailableEventStore) List(context.Context, scout.SearchFilters, int, int) ([]scout.Event, int, error) {
	return nil, 0, scout.ErrStoreUnavailable
}

type fixture struct {
	orch   *Orchestrator
	events *storemem.EventStore
	jobs   *storemem.JobStore
	queue  *queuemem.Queue
	now    time.Time
}

func newFixture(t *testing.T, mutate func(*Deps, *Options)) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) // a Wednesday
	events := storemem.NewEventStore()
	jobs := storemem.NewJobStore()
	q := queuemem.New(8, scout.NewRetryPolicy(3), nil)
	t.Cleanup(q.Close)

	counters := countermem.New()
	deps := Deps{
		Events: events,
		Jobs:   jobs,
		Queue:  q,
		Cache:  cachemem.New(),
		SearchLimiter: ratelimit.New(counters, ratelimit.Config{
			Scope: "search", Limit: 100, Window: 15 * time.Minute,
		}, nil),
		ListingLimiter: ratelimit.New(counters, ratelimit.Config{
			Scope: "listing", Limit: 300, Window: 15 * time.Minute,
		}, nil),
		Clock: fixedClock{now: now},
		IDs:   &seqIDs{},
	}
	opts := Options{
		ResultCap:        50,
		CacheTTL:         30 * time.Second,
		DefaultCity:      "berlin",
		DefaultPlatforms: []string{"meetup", "eventbrite"},
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}

	orch, err := New(deps, opts)
	require.NoError(t, err)
	return &fixture{orch: orch, events: events, jobs: jobs, queue: q, now: now}
}

func seedEvent(t *testing.T, events *storemem.EventStore, id, title string) {
	t.Helper()
	_, err := events.Upsert(context.Background(), []scout.Event{{
		ID:        id,
		Title:     title,
		City:      "berlin",
		StartsAt:  time.Date(2026, 3, 5, 19, 0, 0, 0, time.UTC),
		SourceURL: "https://meetup.com/" + id,
		Platform:  "meetup",
	}})
	require.NoError(t, err)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, _, err := f.orch.Search(context.Background(), "1.2.3.4", Request{})
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchServesInlineResultsFromStore(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedEvent(t, f.events, "ev-1", "React Berlin Meetup")

	resp, verdict, err := f.orch.Search(context.Background(), "1.2.3.4", Request{Query: "react"})
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Equal(t, "database", resp.Source)
	require.Len(t, resp.Events, 1)
	require.Equal(t, 1, resp.Total)
	require.Empty(t, resp.JobID)

	// Inline hits never enqueue anything.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.queue.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearchMissCreatesRunningJobAndPublishes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	resp, _, err := f.orch.Search(context.Background(), "1.2.3.4", Request{Query: "rust"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, scout.JobStatusRunning, resp.Status)
	require.Empty(t, resp.Events)

	job, err := f.jobs.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	require.Equal(t, scout.JobStatusRunning, job.Status)
	require.Equal(t, "berlin", job.City)
	require.Equal(t, []string{"meetup", "eventbrite"}, job.Platforms)

	d, err := f.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, resp.JobID, d.Message.JobID)
	require.Equal(t, "rust", d.Message.Query)
	d.Ack()
}

func TestSearchPublishFailureFailsTheJob(t *testing.T) {
	t.Parallel()

	var jobs *storemem.JobStore
	f := newFixture(t, func(d *Deps, _ *Options) {
		d.Queue = failingQueue{}
		jobs = d.Jobs.(*storemem.JobStore)
	})

	_, _, err := f.orch.Search(context.Background(), "1.2.3.4", Request{Query: "rust"})
	require.Error(t, err)

	stuck, err := jobs.ListStuckJobs(context.Background(), f.now.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, stuck, "the compensating transition should leave no running job behind")
}

func TestSearchRateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps, _ *Options) {
		d.SearchLimiter = ratelimit.New(countermem.New(), ratelimit.Config{
			Scope: "search", Limit: 1, Window: 15 * time.Minute,
		}, nil)
	})

	first, _, err := f.orch.Search(context.Background(), "1.2.3.4", Request{Query: "go"})
	require.NoError(t, err)

	_, verdict, err := f.orch.Search(context.Background(), "1.2.3.4", Request{Query: "go"})
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.False(t, verdict.Allowed)
	require.Equal(t, 0, verdict.Remaining)

	// The rejected request left no job record behind; only the first
	// miss created one.
	stuck, err := f.jobs.ListStuckJobs(context.Background(), f.now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	require.Equal(t, first.JobID, stuck[0].ID)
}

func TestListCachesPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedEvent(t, f.events, "ev-1", "Go Berlin")

	page, _, err := f.orch.List(context.Background(), "1.2.3.4", scout.SearchFilters{City: "berlin"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, 1, page.Pagination.Total)
	require.Equal(t, 1, page.Pagination.Pages)

	// A second event lands, but the cached page is still served.
	seedEvent(t, f.events, "ev-2", "Rust Berlin")
	page, _, err = f.orch.List(context.Background(), "1.2.3.4", scout.SearchFilters{City: "berlin"}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)

	// A different filter set misses the cache.
	page, _, err = f.orch.List(context.Background(), "1.2.3.4", scout.SearchFilters{}, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Events, 2)
}

func TestListPaginationMath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	for i := 0; i < 45; i++ {
		seedEvent(t, f.events, "ev-"+string(rune('a'+i/26))+string(rune('a'+i%26)), "Go Berlin")
	}

	page, _, err := f.orch.List(context.Background(), "1.2.3.4", scout.SearchFilters{City: "berlin"}, 2, 20)
	require.NoError(t, err)
	require.Len(t, page.Events, 20)
	require.Equal(t, 45, page.Pagination.Total)
	require.Equal(t, 3, page.Pagination.Pages)
	require.Equal(t, 2, page.Pagination.Page)
}

func TestListServesEmptyPageWhenStoreIsUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps, _ *Options) {
		d.Events = unavailableEventStore{EventStore: storemem.NewEventStore()}
	})

	page, verdict, err := f.orch.List(context.Background(), "1.2.3.4", scout.SearchFilters{}, 1, 20)
	require.NoError(t, err)
	require.True(t, verdict.Allowed)
	require.Empty(t, page.Events)
	require.Equal(t, 0, page.Pagination.Total)
}

func TestBucketRangeResolution(t *testing.T) {
	t.Parallel()

	wed := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	from, to := bucketRange(wed, BucketToday)
	require.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), *from)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), *to)

	from, to = bucketRange(wed, BucketThisWeekend)
	require.Equal(t, time.Saturday, from.Weekday())
	require.Equal(t, time.Monday, to.Weekday())

	from, to = bucketRange(wed, BucketNextWeek)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), *from)
	require.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), *to)

	from, to = bucketRange(wed, "")
	require.Nil(t, from)
	require.Nil(t, to)
}
