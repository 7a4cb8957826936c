package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/eventscout/eventscout/internal/scout"
)

// JobStore persists search-job records in Postgres.
//
// Expected schema:
//
//	CREATE TABLE search_jobs (
//		id             UUID PRIMARY KEY,
//		query          TEXT NOT NULL,
//		city           TEXT NOT NULL,
//		platforms      TEXT[] NOT NULL,
//		status         TEXT NOT NULL,
//		events_scraped INT NOT NULL DEFAULT 0,
//		error_text     TEXT NOT NULL DEFAULT '',
//		created_at     TIMESTAMPTZ NOT NULL,
//		started_at     TIMESTAMPTZ,
//		completed_at   TIMESTAMPTZ
//	);
//
// Transitions out of running are conditional UPDATEs matching the prior
// status, so a retried delivery or the sweeper cannot overwrite a terminal
// state.
type JobStore struct {
	pool querier
}

// NewJobStore connects a pool and returns the store.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewJobStoreWithPool(pool querier) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new running job row.
func (s *JobStore) CreateJob(ctx context.Context, job scout.JobRecord) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	started := job.StartedAt
	if started == nil {
		now := job.CreatedAt
		started = &now
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO search_jobs (id, query, city, platforms, status, events_scraped, error_text, created_at, started_at)
VALUES ($1, $2, $3, $4, $5, 0, '', $6, $7)`,
		job.ID,
		job.Query,
		job.City,
		job.Platforms,
		string(scout.JobStatusRunning),
		job.CreatedAt,
		started,
	)
	if err != nil {
		return wrapStoreErr("create job", err)
	}
	return nil
}

const jobColumns = `id, query, city, platforms, status, events_scraped, error_text, created_at, started_at, completed_at`

// GetJob fetches a job row by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scout.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+jobColumns+" FROM search_jobs WHERE id = $1", jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scout.JobRecord{}, scout.ErrJobNotFound
		}
		return scout.JobRecord{}, wrapStoreErr("get job", err)
	}
	return job, nil
}

// AddScrapedCount increments the progress counter while the job is running.
func (s *JobStore) AddScrapedCount(ctx context.Context, jobID string, delta int) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE search_jobs SET events_scraped = events_scraped + $2
WHERE id = $1 AND status = 'running'`,
		jobID, delta)
	if err != nil {
		return wrapStoreErr("add scraped count", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missReason(ctx, jobID)
	}
	return nil
}

// CompleteJob transitions running -> completed with the final total.
func (s *JobStore) CompleteJob(ctx context.Context, jobID string, total int) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE search_jobs SET status = 'completed', events_scraped = $2, completed_at = NOW()
WHERE id = $1 AND status = 'running'`,
		jobID, total)
	if err != nil {
		return wrapStoreErr("complete job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missReason(ctx, jobID)
	}
	return nil
}

// FailJob transitions running -> failed with an error message.
func (s *JobStore) FailJob(ctx context.Context, jobID string, errText string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE search_jobs SET status = 'failed', error_text = $2, completed_at = NOW()
WHERE id = $1 AND status = 'running'`,
		jobID, errText)
	if err != nil {
		return wrapStoreErr("fail job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missReason(ctx, jobID)
	}
	return nil
}

// ListStuckJobs returns running jobs created before the cutoff.
func (s *JobStore) ListStuckJobs(ctx context.Context, cutoff time.Time) ([]scout.JobRecord, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+jobColumns+" FROM search_jobs WHERE status = 'running' AND created_at < $1", cutoff)
	if err != nil {
		return nil, wrapStoreErr("list stuck jobs", err)
	}
	defer rows.Close()

	var jobs []scout.JobRecord
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate stuck jobs", err)
	}
	return jobs, nil
}

// missReason distinguishes a vanished row from a finished one after a
// conditional update touched nothing.
func (s *JobStore) missReason(ctx context.Context, jobID string) error {
	var status string
	err := s.pool.QueryRow(ctx,
		"SELECT status FROM search_jobs WHERE id = $1", jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scout.ErrJobNotFound
		}
		return wrapStoreErr("check job status", err)
	}
	return scout.ErrJobFinalized
}

type rowLike interface {
	Scan(dest ...any) error
}

func scanJob(row rowLike) (scout.JobRecord, error) {
	var job scout.JobRecord
	var status string
	if err := row.Scan(
		&job.ID,
		&job.Query,
		&job.City,
		&job.Platforms,
		&status,
		&job.EventsScraped,
		&job.ErrorText,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return scout.JobRecord{}, err
	}
	job.Status = scout.JobStatus(status)
	return job, nil
}
