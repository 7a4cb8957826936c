// Package search implements the database-first search flow: serve inline
// results when the store already has matches, otherwise create a scrape job
// and hand it to the queue.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/fingerprint"
	"github.com/eventscout/eventscout/internal/ratelimit"
	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/telemetry"
)

// ErrEmptyQuery rejects search requests without a query.
var ErrEmptyQuery = errors.New("query must not be empty")

// RateLimitedError carries the limiter verdict for a rejected request.
type RateLimitedError struct {
	Result ratelimit.Result
}

func (e *RateLimitedError) Error() string {
	return "rate limit exceeded"
}

// Request is one search submission.
type Request struct {
	Query      string   `json:"query"`
	City       string   `json:"city,omitempty"`
	EventType  string   `json:"event_type,omitempty"`
	PriceTier  string   `json:"price_tier,omitempty"`
	DateBucket string   `json:"date_bucket,omitempty"`
	Platforms  []string `json:"platforms,omitempty"`
}

// Response is either an inline result set (Source "database") or a pointer
// to the scrape job that will gather results.
type Response struct {
	Source string        `json:"source,omitempty"`
	Events []scout.Event `json:"events,omitempty"`
	Total  int           `json:"total,omitempty"`

	JobID  string          `json:"job_id,omitempty"`
	Status scout.JobStatus `json:"status,omitempty"`
}

// ListPage is one page of the event listing.
type ListPage struct {
	Events     []scout.Event    `json:"events"`
	Pagination scout.Pagination `json:"pagination"`
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Events scout.EventStore
	Jobs   scout.JobStore
	Queue  scout.Queue
	Cache  scout.ResultCache

	SearchLimiter  *ratelimit.Limiter
	ListingLimiter *ratelimit.Limiter

	Clock  scout.Clock
	IDs    scout.IDGenerator
	Logger *zap.Logger
}

// Options tune result caps, cache lifetime, and job defaults.
type Options struct {
	ResultCap        int
	CacheTTL         time.Duration
	DefaultCity      string
	DefaultPlatforms []string
}

// Orchestrator coordinates limiters, store, cache, and queue for the two
// read paths of the service.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New validates the dependency set and returns an orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Events == nil:
		return nil, fmt.Errorf("event store is required")
	case deps.Jobs == nil:
		return nil, fmt.Errorf("job store is required")
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue is required")
	case deps.Cache == nil:
		return nil, fmt.Errorf("result cache is required")
	case deps.SearchLimiter == nil || deps.ListingLimiter == nil:
		return nil, fmt.Errorf("both limiters are required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.ResultCap <= 0 {
		opts.ResultCap = 50
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	return &Orchestrator{deps: deps, opts: opts}, nil
}

// Search serves a free-text search. The event store is consulted first; only
// an empty result set spawns a scrape job.
func (o *Orchestrator) Search(ctx context.Context, identity string, req Request) (Response, ratelimit.Result, error) {
	if req.Query == "" {
		return Response{}, ratelimit.Result{}, ErrEmptyQuery
	}

	verdict := o.deps.SearchLimiter.Check(ctx, identity)
	if !verdict.Allowed {
		return Response{}, verdict, &RateLimitedError{Result: verdict}
	}

	filters := scout.SearchFilters{
		Query:     req.Query,
		City:      req.City,
		EventType: req.EventType,
		PriceTier: req.PriceTier,
		Platforms: req.Platforms,
		Limit:     o.opts.ResultCap,
	}
	filters.DateFrom, filters.DateTo = bucketRange(o.deps.Clock.Now(), req.DateBucket)

	events, err := o.deps.Events.Search(ctx, filters)
	if err != nil {
		return Response{}, verdict, fmt.Errorf("search events: %w", err)
	}
	if len(events) > 0 {
		telemetry.ObserveSearch("database")
		return Response{
			Source: "database",
			Events: events,
			Total:  len(events),
		}, verdict, nil
	}

	resp, err := o.createJob(ctx, req)
	return resp, verdict, err
}

// createJob records a running job and enqueues its message. A publish
// failure fails the job so no record is left running with no message behind
// it.
func (o *Orchestrator) createJob(ctx context.Context, req Request) (Response, error) {
	city := req.City
	if city == "" {
		city = o.opts.DefaultCity
	}
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = append([]string(nil), o.opts.DefaultPlatforms...)
	}

	jobID, err := o.deps.IDs.NewID()
	if err != nil {
		return Response{}, fmt.Errorf("generate job id: %w", err)
	}

	now := o.deps.Clock.Now()
	job := scout.JobRecord{
		ID:        jobID,
		Query:     req.Query,
		City:      city,
		Platforms: platforms,
		Status:    scout.JobStatusRunning,
		CreatedAt: now,
		StartedAt: &now,
	}
	if err := o.deps.Jobs.CreateJob(ctx, job); err != nil {
		return Response{}, fmt.Errorf("create job: %w", err)
	}

	msg := scout.QueueMessage{
		JobID:     jobID,
		Query:     req.Query,
		City:      city,
		Platforms: platforms,
	}
	if err := o.deps.Queue.Publish(ctx, msg); err != nil {
		o.deps.Logger.Error("publish failed, failing job",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		if failErr := o.deps.Jobs.FailJob(ctx, jobID, "failed to enqueue scrape job"); failErr != nil {
			o.deps.Logger.Error("compensating job failure did not apply",
				zap.String("job_id", jobID),
				zap.Error(failErr),
			)
		}
		return Response{}, fmt.Errorf("publish job message: %w", err)
	}

	telemetry.ObserveSearch("job")
	o.deps.Logger.Info("scrape job enqueued",
		zap.String("job_id", jobID),
		zap.String("query", req.Query),
		zap.String("city", city),
		zap.Strings("platforms", platforms),
	)
	return Response{JobID: jobID, Status: scout.JobStatusRunning}, nil
}

// List serves one page of the event listing through the result cache.
func (o *Orchestrator) List(ctx context.Context, identity string, filters scout.SearchFilters, page, limit int) (ListPage, ratelimit.Result, error) {
	verdict := o.deps.ListingLimiter.Check(ctx, identity)
	if !verdict.Allowed {
		return ListPage{}, verdict, &RateLimitedError{Result: verdict}
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > o.opts.ResultCap {
		limit = o.opts.ResultCap
	}

	key, err := listCacheKey(filters, page, limit)
	if err != nil {
		return ListPage{}, verdict, fmt.Errorf("compute cache key: %w", err)
	}

	if cached, ok, err := o.deps.Cache.Get(ctx, key); err != nil {
		o.deps.Logger.Warn("cache read failed", zap.Error(err))
	} else if ok {
		var result ListPage
		if err := json.Unmarshal(cached, &result); err == nil {
			telemetry.ObserveCache("hit")
			return result, verdict, nil
		}
		o.deps.Logger.Warn("discarding undecodable cache entry", zap.String("key", key))
	}
	telemetry.ObserveCache("miss")

	filters.DateFrom, filters.DateTo = bucketRange(o.deps.Clock.Now(), filters.DateBucket)
	events, total, err := o.deps.Events.List(ctx, filters, page, limit)
	if err != nil {
		if errors.Is(err, scout.ErrStoreUnavailable) {
			o.deps.Logger.Warn("event store unavailable, serving empty page", zap.Error(err))
			return emptyPage(page, limit), verdict, nil
		}
		return ListPage{}, verdict, fmt.Errorf("list events: %w", err)
	}

	result := ListPage{
		Events: events,
		Pagination: scout.Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}
	if data, err := json.Marshal(result); err == nil {
		if err := o.deps.Cache.Set(ctx, key, data, o.opts.CacheTTL); err != nil {
			o.deps.Logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return result, verdict, nil
}

func emptyPage(page, limit int) ListPage {
	return ListPage{
		Events:     []scout.Event{},
		Pagination: scout.Pagination{Page: page, Limit: limit},
	}
}

// listCacheKey fingerprints the filter set plus pagination, so identical
// requests share a cache entry regardless of parameter order upstream.
func listCacheKey(f scout.SearchFilters, page, limit int) (string, error) {
	params := map[string]any{
		"page":  page,
		"limit": limit,
	}
	if f.City != "" {
		params["city"] = f.City
	}
	if f.EventType != "" {
		params["event_type"] = f.EventType
	}
	if f.PriceTier != "" {
		params["price_tier"] = f.PriceTier
	}
	if f.DateBucket != "" {
		params["date_bucket"] = f.DateBucket
	}
	if len(f.Platforms) > 0 {
		params["platforms"] = f.Platforms
	}
	return fingerprint.Compute(params)
}
