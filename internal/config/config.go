// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Search    SearchConfig    `mapstructure:"search"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	Provider string `mapstructure:"provider"` // memory | postgres
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig points at the shared Redis used by the cache and the
// rate-limit counter store.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig governs the listing result cache.
type CacheConfig struct {
	Provider   string `mapstructure:"provider"` // memory | redis
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// WindowConfig is one rate-limit window definition.
type WindowConfig struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// RateLimitConfig holds the two independent limiter instances.
type RateLimitConfig struct {
	Provider string       `mapstructure:"provider"` // memory | redis
	Listing  WindowConfig `mapstructure:"listing"`
	Search   WindowConfig `mapstructure:"search"`
}

// QueueConfig selects and tunes the job queue broker.
type QueueConfig struct {
	Provider    string       `mapstructure:"provider"` // memory | pubsub | kafka
	Depth       int          `mapstructure:"depth"`
	MaxAttempts int          `mapstructure:"max_attempts"`
	PubSub      PubSubConfig `mapstructure:"pubsub"`
	Kafka       KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds GCP Pub/Sub coordinates.
type PubSubConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	TopicID        string `mapstructure:"topic_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// KafkaConfig holds Kafka coordinates.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// SearchConfig tunes the search orchestrator.
type SearchConfig struct {
	ResultCap        int      `mapstructure:"result_cap"`
	DefaultCity      string   `mapstructure:"default_city"`
	DefaultPlatforms []string `mapstructure:"default_platforms"`
}

// WorkerConfig bounds job execution concurrency.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// SweeperConfig governs stuck-job reconciliation.
type SweeperConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Schedule          string `mapstructure:"schedule"`
	MaxRunningMinutes int    `mapstructure:"max_running_minutes"`
}

// ArchiveConfig sets the raw scrape-batch archive destination.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"` // noop | memory | gcs
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EVENTSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("cache.provider", "memory")
	v.SetDefault("cache.ttl_seconds", 30)
	v.SetDefault("ratelimit.provider", "memory")
	v.SetDefault("ratelimit.listing.limit", 300)
	v.SetDefault("ratelimit.listing.window_seconds", 900)
	v.SetDefault("ratelimit.search.limit", 100)
	v.SetDefault("ratelimit.search.window_seconds", 900)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("search.result_cap", 50)
	v.SetDefault("search.default_city", "berlin")
	v.SetDefault("search.default_platforms", []string{"meetup", "eventbrite"})
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "@every 1m")
	v.SetDefault("sweeper.max_running_minutes", 15)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "batches")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.RateLimit.Listing.Limit <= 0 || c.RateLimit.Search.Limit <= 0 {
		return fmt.Errorf("ratelimit limits must be > 0")
	}
	if c.RateLimit.Listing.WindowSeconds <= 0 || c.RateLimit.Search.WindowSeconds <= 0 {
		return fmt.Errorf("ratelimit windows must be > 0")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be > 0")
	}
	if c.Search.ResultCap <= 0 {
		return fmt.Errorf("search.result_cap must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if (c.Cache.Provider == "redis" || c.RateLimit.Provider == "redis") && c.Redis.URL == "" {
		return fmt.Errorf("redis.url must be set when a redis provider is selected")
	}
	switch c.Queue.Provider {
	case "memory":
	case "pubsub":
		if c.Queue.PubSub.ProjectID == "" || c.Queue.PubSub.TopicID == "" || c.Queue.PubSub.SubscriptionID == "" {
			return fmt.Errorf("queue.pubsub project_id, topic_id and subscription_id are required")
		}
	case "kafka":
		if len(c.Queue.Kafka.Brokers) == 0 || c.Queue.Kafka.Topic == "" {
			return fmt.Errorf("queue.kafka brokers and topic are required")
		}
	default:
		return fmt.Errorf("unknown queue provider: %s", c.Queue.Provider)
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive.provider is gcs")
	}
	return nil
}

// CacheTTL returns the listing cache TTL as a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ListingWindow returns the listing limiter window as a duration.
func (c Config) ListingWindow() time.Duration {
	return time.Duration(c.RateLimit.Listing.WindowSeconds) * time.Second
}

// SearchWindow returns the search limiter window as a duration.
func (c Config) SearchWindow() time.Duration {
	return time.Duration(c.RateLimit.Search.WindowSeconds) * time.Second
}

// MaxRunningAge returns the sweeper cutoff age as a duration.
func (c Config) MaxRunningAge() time.Duration {
	return time.Duration(c.Sweeper.MaxRunningMinutes) * time.Minute
}
