package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func createJobAt(t *testing.T, jobs *storemem.JobStore, id string, created time.Time) {
	t.Helper()
	require.NoError(t, jobs.CreateJob(context.Background(), scout.JobRecord{
		ID:        id,
		Query:     "go",
		City:      "berlin",
		Platforms: []string{"meetup"},
		Status:    scout.JobStatusRunning,
		CreatedAt: created,
		StartedAt: &created,
	}))
}

func TestSweepFailsOnlyOverageRunningJobs(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	jobs := storemem.NewJobStore()
	createJobAt(t, jobs, "old", now.Add(-20*time.Minute))
	createJobAt(t, jobs, "fresh", now.Add(-5*time.Minute))
	createJobAt(t, jobs, "done", now.Add(-30*time.Minute))
	require.NoError(t, jobs.CompleteJob(context.Background(), "done", 3))

	s := New(jobs, fixedClock{now: now}, Config{MaxRunningAge: 15 * time.Minute}, nil)
	require.NoError(t, s.Sweep(context.Background()))

	old, err := jobs.GetJob(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, scout.JobStatusFailed, old.Status)
	require.Equal(t, FailureText, old.ErrorText)

	fresh, err := jobs.GetJob(context.Background(), "fresh")
	require.NoError(t, err)
	require.Equal(t, scout.JobStatusRunning, fresh.Status)

	done, err := jobs.GetJob(context.Background(), "done")
	require.NoError(t, err)
	require.Equal(t, scout.JobStatusCompleted, done.Status)
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	jobs := storemem.NewJobStore()
	createJobAt(t, jobs, "old", now.Add(-20*time.Minute))

	s := New(jobs, fixedClock{now: now}, Config{MaxRunningAge: 15 * time.Minute}, nil)
	require.NoError(t, s.Sweep(context.Background()))
	require.NoError(t, s.Sweep(context.Background()))

	job, err := jobs.GetJob(context.Background(), "old")
	require.NoError(t, err)
	require.Equal(t, scout.JobStatusFailed, job.Status)
}
