package scout

import (
	"context"
	"time"
)

// EventStore persists and queries event listings.
type EventStore interface {
	// Search returns events matching the filters, ordered by quality
	// descending then start time ascending, capped at filters.Limit.
	Search(ctx context.Context, filters SearchFilters) ([]Event, error)
	// List returns one page of events plus the total matching count.
	List(ctx context.Context, filters SearchFilters, page, limit int) ([]Event, int, error)
	// Upsert inserts events, skipping rows whose source URL already exists.
	// It returns the number of newly inserted rows.
	Upsert(ctx context.Context, events []Event) (int, error)
	// ExistsByURL checks the dedup signal for a single source URL.
	ExistsByURL(ctx context.Context, sourceURL string) (bool, error)
}

// JobStore persists job records. Status transitions out of running are
// conditional updates so that retried deliveries and the sweeper cannot
// overwrite a terminal state.
type JobStore interface {
	CreateJob(ctx context.Context, job JobRecord) error
	GetJob(ctx context.Context, jobID string) (JobRecord, error)
	// AddScrapedCount increments the progress counter while the job is
	// still running.
	AddScrapedCount(ctx context.Context, jobID string, delta int) error
	// CompleteJob transitions running -> completed with the final total.
	// Returns ErrJobFinalized if the job already reached a terminal state.
	CompleteJob(ctx context.Context, jobID string, total int) error
	// FailJob transitions running -> failed with an error message.
	// Returns ErrJobFinalized if the job already reached a terminal state.
	FailJob(ctx context.Context, jobID string, errText string) error
	// ListStuckJobs returns running jobs created before the cutoff.
	ListStuckJobs(ctx context.Context, cutoff time.Time) ([]JobRecord, error)
}

// ResultCache holds serialized responses keyed by request fingerprint.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CounterStore is the shared storage behind the rate limiter. Incr atomically
// increments the counter for the current window, creating it with the window
// TTL on first use, and returns the post-increment count and the window reset
// time.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

// Queue carries job-execution requests from producers to workers with
// at-least-once delivery. Publish returns only after the broker acknowledged
// the message, so a rejection is visible to the caller synchronously.
type Queue interface {
	Publish(ctx context.Context, msg QueueMessage) error
	Dequeue(ctx context.Context) (Delivery, error)
}

// Scraper is a platform-specific collaborator that discovers events for a
// query and city. Implementations are external to this subsystem.
type Scraper interface {
	Platform() string
	Scrape(ctx context.Context, query, city string) ([]Event, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
