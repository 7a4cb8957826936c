// Package main wires together the search service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/api"
	cachemem "github.com/eventscout/eventscout/internal/cache/memory"
	cacheredis "github.com/eventscout/eventscout/internal/cache/redis"
	"github.com/eventscout/eventscout/internal/clock/system"
	"github.com/eventscout/eventscout/internal/config"
	countermem "github.com/eventscout/eventscout/internal/counter/memory"
	counterredis "github.com/eventscout/eventscout/internal/counter/redis"
	"github.com/eventscout/eventscout/internal/dispatcher"
	"github.com/eventscout/eventscout/internal/id/uuid"
	"github.com/eventscout/eventscout/internal/logging"
	queuekafka "github.com/eventscout/eventscout/internal/queue/kafka"
	queuemem "github.com/eventscout/eventscout/internal/queue/memory"
	queuepubsub "github.com/eventscout/eventscout/internal/queue/pubsub"
	"github.com/eventscout/eventscout/internal/ratelimit"
	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/scraper"
	"github.com/eventscout/eventscout/internal/scraper/static"
	"github.com/eventscout/eventscout/internal/search"
	storagegcs "github.com/eventscout/eventscout/internal/storage/gcs"
	storagemem "github.com/eventscout/eventscout/internal/storage/memory"
	storagenoop "github.com/eventscout/eventscout/internal/storage/noop"
	storemem "github.com/eventscout/eventscout/internal/store/memory"
	storepg "github.com/eventscout/eventscout/internal/store/postgres"
	"github.com/eventscout/eventscout/internal/sweeper"
	"github.com/eventscout/eventscout/internal/telemetry"
	"github.com/eventscout/eventscout/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	telemetry.Init()

	clock := system.New()
	idGen := uuid.New()

	events, jobs, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	counters, closeCounters, err := buildCounters(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCounters()

	cache, closeCache, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	queue, closeQueue, err := buildQueue(ctx, cfg, jobs, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return err
	}

	orch, err := search.New(search.Deps{
		Events: events,
		Jobs:   jobs,
		Queue:  queue,
		Cache:  cache,
		SearchLimiter: ratelimit.New(counters, ratelimit.Config{
			Scope:  "search",
			Limit:  cfg.RateLimit.Search.Limit,
			Window: cfg.SearchWindow(),
		}, logger.Named("ratelimit")),
		ListingLimiter: ratelimit.New(counters, ratelimit.Config{
			Scope:  "listing",
			Limit:  cfg.RateLimit.Listing.Limit,
			Window: cfg.ListingWindow(),
		}, logger.Named("ratelimit")),
		Clock:  clock,
		IDs:    idGen,
		Logger: logger.Named("search"),
	}, search.Options{
		ResultCap:        cfg.Search.ResultCap,
		CacheTTL:         cfg.CacheTTL(),
		DefaultCity:      cfg.Search.DefaultCity,
		DefaultPlatforms: cfg.Search.DefaultPlatforms,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	registry := scraper.NewRegistry()
	for _, platform := range cfg.Search.DefaultPlatforms {
		registry.Register(static.New(platform, nil))
	}

	var workers []*worker.Worker
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue, jobs, events, registry, archive, clock,
			worker.Config{},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(workers)

	if cfg.Sweeper.Enabled {
		sw := sweeper.New(jobs, clock, sweeper.Config{
			Schedule:      cfg.Sweeper.Schedule,
			MaxRunningAge: cfg.MaxRunningAge(),
		}, logger.Named("sweeper"))
		if err := sw.Start(ctx); err != nil {
			return fmt.Errorf("start sweeper: %w", err)
		}
		defer sw.Stop()
	}

	apiServer := api.NewServer(orch, jobs, events, clock, api.Config{
		ResultCap: cfg.Search.ResultCap,
	}, logger.Named("api"), nil)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("concurrency", cfg.Worker.Concurrency))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStores(ctx context.Context, cfg config.Config) (scout.EventStore, scout.JobStore, func(), error) {
	switch cfg.DB.Provider {
	case "postgres":
		pgCfg := storepg.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		}
		events, err := storepg.NewEventStore(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect event store: %w", err)
		}
		jobs, err := storepg.NewJobStore(ctx, pgCfg)
		if err != nil {
			events.Close()
			return nil, nil, nil, fmt.Errorf("connect job store: %w", err)
		}
		return events, jobs, func() {
			jobs.Close()
			events.Close()
		}, nil
	case "memory":
		return storemem.NewEventStore(), storemem.NewJobStore(), func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func buildCounters(ctx context.Context, cfg config.Config) (scout.CounterStore, func(), error) {
	switch cfg.RateLimit.Provider {
	case "redis":
		counters, err := counterredis.New(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis counters: %w", err)
		}
		return counters, func() { _ = counters.Close() }, nil
	case "memory":
		return countermem.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown ratelimit provider %q", cfg.RateLimit.Provider)
	}
}

func buildCache(ctx context.Context, cfg config.Config) (scout.ResultCache, func(), error) {
	switch cfg.Cache.Provider {
	case "redis":
		cache, err := cacheredis.New(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return cache, func() { _ = cache.Close() }, nil
	case "memory":
		return cachemem.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache provider %q", cfg.Cache.Provider)
	}
}

func buildQueue(ctx context.Context, cfg config.Config, jobs scout.JobStore, logger *zap.Logger) (scout.Queue, func(), error) {
	policy := scout.NewRetryPolicy(cfg.Queue.MaxAttempts)
	deadLetter := func(msg scout.QueueMessage, reason string) {
		if err := jobs.FailJob(context.Background(), msg.JobID, reason); err != nil {
			logger.Warn("dead-letter transition did not apply",
				zap.String("job_id", msg.JobID),
				zap.Error(err),
			)
		}
	}

	switch cfg.Queue.Provider {
	case "pubsub":
		q, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID:      cfg.Queue.PubSub.ProjectID,
			TopicID:        cfg.Queue.PubSub.TopicID,
			SubscriptionID: cfg.Queue.PubSub.SubscriptionID,
		}, logger.Named("queue"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect pubsub queue: %w", err)
		}
		return q, func() { _ = q.Close() }, nil
	case "kafka":
		q, err := queuekafka.New(queuekafka.Config{
			Brokers: cfg.Queue.Kafka.Brokers,
			Topic:   cfg.Queue.Kafka.Topic,
			GroupID: cfg.Queue.Kafka.GroupID,
		}, policy, logger.Named("queue"))
		if err != nil {
			return nil, nil, fmt.Errorf("build kafka queue: %w", err)
		}
		q.OnDeadLetter(deadLetter)
		return q, func() { _ = q.Close() }, nil
	case "memory":
		q := queuemem.New(cfg.Queue.Depth, policy, logger.Named("queue"))
		q.OnDeadLetter(deadLetter)
		return q, q.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue provider %q", cfg.Queue.Provider)
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (scout.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		store, err := storagegcs.New(client, storagegcs.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("build gcs archive: %w", err)
		}
		return store, nil
	case "memory":
		return storagemem.New(), nil
	case "noop", "":
		return storagenoop.New(), nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}
