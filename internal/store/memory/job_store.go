package memory

import (
	"context"
	"sync"
	"time"

	"github.com/eventscout/eventscout/internal/scout"
)

// JobStore implements scout.JobStore in memory. Terminal transitions are
// conditional on the running status, mirroring the optimistic concurrency
// the Postgres store gets from conditional UPDATEs.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scout.JobRecord
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scout.JobRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job; only running jobs may be created.
func (s *JobStore) CreateJob(_ context.Context, job scout.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return scout.ErrJobExists
	}
	job.Status = scout.JobStatusRunning
	if job.StartedAt == nil {
		started := s.now()
		job.StartedAt = &started
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scout.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scout.JobRecord{}, scout.ErrJobNotFound
	}
	return job, nil
}

// AddScrapedCount increments the progress counter while the job is running.
func (s *JobStore) AddScrapedCount(_ context.Context, jobID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scout.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return scout.ErrJobFinalized
	}
	job.EventsScraped += delta
	s.jobs[jobID] = job
	return nil
}

// CompleteJob transitions running -> completed exactly once.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, total int) error {
	return s.finalize(jobID, scout.JobStatusCompleted, total, "")
}

// FailJob transitions running -> failed exactly once.
func (s *JobStore) FailJob(_ context.Context, jobID string, errText string) error {
	return s.finalize(jobID, scout.JobStatusFailed, -1, errText)
}

// ListStuckJobs returns running jobs created before the cutoff.
func (s *JobStore) ListStuckJobs(_ context.Context, cutoff time.Time) ([]scout.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scout.JobRecord
	for _, job := range s.jobs {
		if job.Status == scout.JobStatusRunning && job.CreatedAt.Before(cutoff) {
			out = append(out, job)
		}
	}
	return out, nil
}

func (s *JobStore) finalize(jobID string, status scout.JobStatus, total int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scout.ErrJobNotFound
	}
	if job.Status != scout.JobStatusRunning {
		return scout.ErrJobFinalized
	}
	job.Status = status
	if total >= 0 {
		job.EventsScraped = total
	}
	job.ErrorText = errText
	completed := s.now()
	job.CompletedAt = &completed
	s.jobs[jobID] = job
	return nil
}
