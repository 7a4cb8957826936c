// Package ratelimit implements fixed-window admission control per client
// identity over a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/telemetry"
)

// Result reports one admission decision together with the window metadata
// every response must carry.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// RetryAfter returns the seconds until the window resets, floored at 1.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.Reset.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Config tunes one limiter instance.
type Config struct {
	// Scope namespaces the counter keys so independent limiters cannot
	// interfere ("listing", "search").
	Scope  string
	Limit  int
	Window time.Duration
}

// Limiter admits or rejects requests per client identity. Counter mutation
// is delegated to the shared store, which must increment atomically; the
// limiter itself holds no mutable state. Counter store failures fail open:
// the request is admitted and the error is logged and counted.
type Limiter struct {
	counters scout.CounterStore
	cfg      Config
	logger   *zap.Logger
}

// New creates a Limiter over the given counter store.
func New(counters scout.CounterStore, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{counters: counters, cfg: cfg, logger: logger}
}

// Check increments the identity's counter for the current window and decides
// admission. The post-increment count is compared against the limit, so
// concurrent callers sharing an identity cannot both sneak under it.
func (l *Limiter) Check(ctx context.Context, identity string) Result {
	key := fmt.Sprintf("ratelimit:%s:%s", l.cfg.Scope, identity)
	count, reset, err := l.counters.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		l.logger.Warn("counter store unavailable, failing open",
			zap.String("scope", l.cfg.Scope),
			zap.Error(err),
		)
		telemetry.ObserveRateLimitError()
		return Result{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit, Reset: time.Now().Add(l.cfg.Window)}
	}

	if count > int64(l.cfg.Limit) {
		telemetry.ObserveRateLimitRejection(l.cfg.Scope)
		return Result{Allowed: false, Limit: l.cfg.Limit, Remaining: 0, Reset: reset}
	}

	remaining := l.cfg.Limit - int(count)
	return Result{Allowed: true, Limit: l.cfg.Limit, Remaining: remaining, Reset: reset}
}
