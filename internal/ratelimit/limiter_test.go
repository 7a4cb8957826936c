package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	countermemory "github.com/eventscout/eventscout/internal/counter/memory"
	"github.com/eventscout/eventscout/internal/telemetry"
)

func TestLimiterAdmitsUpToLimitThenRejects(t *testing.T) {
	telemetry.Init()
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	counters := countermemory.NewWithClock(func() time.Time { return now })
	l := New(counters, Config{Scope: "search", Limit: 3, Window: 900 * time.Second}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res := l.Check(ctx, "10.0.0.1")
		require.True(t, res.Allowed, "request %d should be admitted", i+1)
		require.Equal(t, 3-(i+1), res.Remaining)
		require.Equal(t, 3, res.Limit)
	}

	res := l.Check(ctx, "10.0.0.1")
	require.False(t, res.Allowed)
	require.Zero(t, res.Remaining)
	require.LessOrEqual(t, res.RetryAfter(now), 900)

	// A different identity is unaffected.
	other := l.Check(ctx, "10.0.0.2")
	require.True(t, other.Allowed)
}

func TestLimiterResetsAfterWindowElapses(t *testing.T) {
	telemetry.Init()
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	counters := countermemory.NewWithClock(func() time.Time { return now })
	l := New(counters, Config{Scope: "search", Limit: 1, Window: 900 * time.Second}, zap.NewNop())

	ctx := context.Background()
	require.True(t, l.Check(ctx, "1.2.3.4").Allowed)
	require.False(t, l.Check(ctx, "1.2.3.4").Allowed)

	now = now.Add(901 * time.Second)
	res := l.Check(ctx, "1.2.3.4")
	require.True(t, res.Allowed)
	require.Zero(t, res.Remaining)
}

func TestLimiterScopesDoNotInterfere(t *testing.T) {
	telemetry.Init()
	t.Parallel()

	counters := countermemory.New()
	search := New(counters, Config{Scope: "search", Limit: 1, Window: time.Minute}, zap.NewNop())
	listing := New(counters, Config{Scope: "listing", Limit: 1, Window: time.Minute}, zap.NewNop())

	ctx := context.Background()
	require.True(t, search.Check(ctx, "9.9.9.9").Allowed)
	require.False(t, search.Check(ctx, "9.9.9.9").Allowed)
	// Listing keeps its own counter namespace.
	require.True(t, listing.Check(ctx, "9.9.9.9").Allowed)
}

func TestLimiterConcurrentCallersShareOneWindow(t *testing.T) {
	telemetry.Init()
	t.Parallel()

	counters := countermemory.New()
	l := New(counters, Config{Scope: "search", Limit: 50, Window: time.Minute}, zap.NewNop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(context.Background(), "shared").Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, admitted)
}

type failingCounters struct{}

func (failingCounters) Incr(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}

func TestLimiterFailsOpenOnCounterStoreError(t *testing.T) {
	telemetry.Init()
	t.Parallel()

	l := New(failingCounters{}, Config{Scope: "search", Limit: 1, Window: time.Minute}, zap.NewNop())
	res := l.Check(context.Background(), "1.1.1.1")
	require.True(t, res.Allowed)
	require.Equal(t, 1, res.Remaining)
}

func TestClientIdentityPriority(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/v1/events", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.Header.Set("X-Real-IP", "198.51.100.2")
	r.Header.Set("CF-Connecting-IP", "192.0.2.9")
	require.Equal(t, "203.0.113.7", ClientIdentity(r))

	r.Header.Del("X-Forwarded-For")
	require.Equal(t, "198.51.100.2", ClientIdentity(r))

	r.Header.Del("X-Real-IP")
	require.Equal(t, "192.0.2.9", ClientIdentity(r))

	r.Header.Del("CF-Connecting-IP")
	require.Equal(t, "unknown", ClientIdentity(r))
}
