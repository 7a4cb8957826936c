// Package sweeper reconciles jobs stuck in the running state. A job whose
// queue message was lost or exhausted its retries would otherwise stay
// running forever; the sweeper fails it once it exceeds the maximum age.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/telemetry"
)

// FailureText is the error recorded on swept jobs.
const FailureText = "job exceeded maximum runtime"

// Config controls the sweep cadence and the stuck threshold.
type Config struct {
	Schedule      string
	MaxRunningAge time.Duration
}

// Sweeper periodically fails running jobs older than the configured age.
type Sweeper struct {
	cron   *cron.Cron
	jobs   scout.JobStore
	clock  scout.Clock
	cfg    Config
	logger *zap.Logger
}

// New creates a Sweeper.
func New(jobs scout.JobStore, clock scout.Clock, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.MaxRunningAge <= 0 {
		cfg.MaxRunningAge = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cron:   cron.New(),
		jobs:   jobs,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("max_running_age", s.cfg.MaxRunningAge),
	)
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep fails every running job older than the threshold. A job that
// finishes between the listing and the update is left alone.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.MaxRunningAge)
	stuck, err := s.jobs.ListStuckJobs(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stuck jobs: %w", err)
	}

	for _, job := range stuck {
		if err := s.jobs.FailJob(ctx, job.ID, FailureText); err != nil {
			s.logger.Warn("sweep transition did not apply",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			continue
		}
		telemetry.ObserveJob(string(scout.JobStatusFailed))
		s.logger.Info("swept stuck job",
			zap.String("job_id", job.ID),
			zap.Time("created_at", job.CreatedAt),
		)
	}
	return nil
}
