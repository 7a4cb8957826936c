// Package worker executes scrape jobs delivered from the queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/scraper"
	"github.com/eventscout/eventscout/internal/telemetry"
)

// Config controls worker behavior.
type Config struct {
	ArchivePrefix string
}

// Worker consumes deliveries and runs the scrape pipeline for each job:
// scrape every requested platform, upsert what was found, and finish the
// job record with exactly one terminal transition.
type Worker struct {
	queue    scout.Queue
	jobs     scout.JobStore
	events   scout.EventStore
	scrapers *scraper.Registry
	archive  scout.BlobStore
	clock    scout.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. The archive store may be nil when raw batch
// archiving is disabled.
func New(
	queue scout.Queue,
	jobs scout.JobStore,
	events scout.EventStore,
	scrapers *scraper.Registry,
	archive scout.BlobStore,
	clock scout.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "batches"
	}
	return &Worker{
		queue:    queue,
		jobs:     jobs,
		events:   events,
		scrapers: scrapers,
		archive:  archive,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// How long the consume loop pauses after a dequeue failure, so a broken
// queue does not spin the worker.
const dequeueRetryDelay = time.Second

// Run blocks, consuming deliveries until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		d, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-time.After(dequeueRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", d.Message.JobID),
			zap.Int("attempt", d.Attempt),
		)
		w.Process(ctx, d)
	}
}

// Process handles one delivery. Unknown and already-finished jobs are acked
// and dropped so redeliveries stay idempotent; infrastructure failures nack
// for another attempt.
func (w *Worker) Process(ctx context.Context, d scout.Delivery) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	jobID := d.Message.JobID
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scout.ErrJobNotFound) {
			w.logger.Warn("dropping message for unknown job", zap.String("job_id", jobID))
			d.Ack()
			return
		}
		w.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		d.Nack()
		return
	}
	if job.Status.IsTerminal() {
		w.logger.Info("job already finished, dropping redelivery",
			zap.String("job_id", jobID),
			zap.String("status", string(job.Status)),
		)
		d.Ack()
		return
	}

	total, scrapeErr := w.scrapePlatforms(ctx, d.Message)
	if errors.Is(scrapeErr, scout.ErrStoreUnavailable) {
		w.logger.Error("event store unavailable, redelivering",
			zap.String("job_id", jobID),
			zap.Error(scrapeErr),
		)
		d.Nack()
		return
	}
	if errors.Is(scrapeErr, scout.ErrJobFinalized) {
		// The sweeper got there first. Nothing left to do.
		d.Ack()
		return
	}

	if err := w.finishJob(ctx, jobID, total, scrapeErr); err != nil {
		w.logger.Error("finish job failed", zap.String("job_id", jobID), zap.Error(err))
		d.Nack()
		return
	}
	d.Ack()
}

// scrapePlatforms runs every requested platform and returns the number of
// newly persisted events plus the last scrape error, if any.
func (w *Worker) scrapePlatforms(ctx context.Context, msg scout.QueueMessage) (int, error) {
	total := 0
	var lastErr error

	for _, platform := range msg.Platforms {
		s, ok := w.scrapers.Lookup(platform)
		if !ok {
			w.logger.Warn("no scraper registered for platform",
				zap.String("job_id", msg.JobID),
				zap.String("platform", platform),
			)
			continue
		}

		found, err := s.Scrape(ctx, msg.Query, msg.City)
		if err != nil {
			w.logger.Error("scrape failed",
				zap.String("job_id", msg.JobID),
				zap.String("platform", platform),
				zap.Error(err),
			)
			lastErr = fmt.Errorf("scrape %s: %w", platform, err)
			continue
		}
		if len(found) == 0 {
			continue
		}

		w.archiveBatch(ctx, msg.JobID, platform, found)

		inserted, err := w.events.Upsert(ctx, found)
		if err != nil {
			if errors.Is(err, scout.ErrStoreUnavailable) {
				return total, err
			}
			w.logger.Error("upsert failed",
				zap.String("job_id", msg.JobID),
				zap.String("platform", platform),
				zap.Error(err),
			)
			lastErr = fmt.Errorf("upsert %s: %w", platform, err)
			continue
		}
		total += inserted
		telemetry.ObserveEventsScraped(platform, inserted)

		if err := w.jobs.AddScrapedCount(ctx, msg.JobID, inserted); err != nil {
			if errors.Is(err, scout.ErrJobFinalized) {
				return total, err
			}
			w.logger.Warn("progress update failed",
				zap.String("job_id", msg.JobID),
				zap.Error(err),
			)
		}
	}
	return total, lastErr
}

// finishJob applies the single terminal transition: failed only when an
// error occurred and nothing was persisted, completed otherwise.
func (w *Worker) finishJob(ctx context.Context, jobID string, total int, scrapeErr error) error {
	if total == 0 && scrapeErr != nil {
		if err := w.jobs.FailJob(ctx, jobID, scrapeErr.Error()); err != nil {
			if errors.Is(err, scout.ErrJobFinalized) || errors.Is(err, scout.ErrJobNotFound) {
				return nil
			}
			return fmt.Errorf("fail job: %w", err)
		}
		telemetry.ObserveJob(string(scout.JobStatusFailed))
		w.logger.Info("job failed",
			zap.String("job_id", jobID),
			zap.String("error", scrapeErr.Error()),
		)
		return nil
	}

	if err := w.jobs.CompleteJob(ctx, jobID, total); err != nil {
		if errors.Is(err, scout.ErrJobFinalized) || errors.Is(err, scout.ErrJobNotFound) {
			return nil
		}
		return fmt.Errorf("complete job: %w", err)
	}
	telemetry.ObserveJob(string(scout.JobStatusCompleted))
	w.logger.Info("job completed",
		zap.String("job_id", jobID),
		zap.Int("events_scraped", total),
	)
	return nil
}

// archiveBatch writes the raw batch JSON to the blob store, best effort.
func (w *Worker) archiveBatch(ctx context.Context, jobID, platform string, batch []scout.Event) {
	if w.archive == nil {
		return
	}
	data, err := json.Marshal(batch)
	if err != nil {
		w.logger.Warn("marshal batch for archive failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s-%d.json",
		w.cfg.ArchivePrefix, jobID, platform, w.clock.Now().UnixNano())
	if _, err := w.archive.PutObject(ctx, path, "application/json", data); err != nil {
		w.logger.Warn("archive batch failed",
			zap.String("job_id", jobID),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
