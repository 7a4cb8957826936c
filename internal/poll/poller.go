// Package poll implements the client-side status polling loop for
// asynchronous search jobs.
package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
)

// State is the lifecycle of one polling loop.
type State string

// Poller states.
const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateTerminal State = "terminal"
)

// StatusFunc fetches the current job record.
type StatusFunc func(ctx context.Context) (scout.JobRecord, error)

// Options tune the polling cadence and error tolerance.
type Options struct {
	Interval  time.Duration
	MaxErrors int
}

// Poller drives a status check to a single terminal outcome: the first check
// runs immediately, then on a fixed interval until the job finishes, the
// error budget is spent, or the context ends.
type Poller struct {
	check  StatusFunc
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates a Poller around the given status check.
func New(check StatusFunc, opts Options, logger *zap.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		check:  check,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the poller's current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// Wait blocks until the job reaches a terminal status and returns its final
// record. It delivers exactly one outcome and leaves the poller terminal
// whether it finishes, spends its error budget, or is cancelled.
func (p *Poller) Wait(ctx context.Context) (scout.JobRecord, error) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return scout.JobRecord{}, fmt.Errorf("poller already used")
	}
	p.state = StatePolling
	p.mu.Unlock()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	consecutiveErrors := 0
	for {
		job, err := p.check(ctx)
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= p.opts.MaxErrors {
				p.setState(StateTerminal)
				return scout.JobRecord{}, fmt.Errorf("status check failed %d times: %w", consecutiveErrors, err)
			}
			p.logger.Warn("status check failed, retrying", zap.Error(err))
		} else {
			consecutiveErrors = 0
			if job.Status.IsTerminal() {
				p.setState(StateTerminal)
				return job, nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.setState(StateTerminal)
			return scout.JobRecord{}, ctx.Err()
		}
	}
}
