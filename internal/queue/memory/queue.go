// Package memory provides an in-process job queue, used in tests and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
)

type item struct {
	msg     scout.QueueMessage
	attempt int
}

// Queue is a bounded in-memory queue with at-least-once semantics. A nacked
// delivery is redelivered after a backoff until the retry budget runs out,
// at which point the dead-letter handler is invoked.
type Queue struct {
	ch     chan item
	policy scout.RetryPolicy
	logger *zap.Logger

	mu         sync.Mutex
	deadLetter func(msg scout.QueueMessage, reason string)
	timers     map[*time.Timer]struct{}
	closed     bool
	done       chan struct{}
}

// New creates a queue holding at most depth undelivered messages.
func New(depth int, policy scout.RetryPolicy, logger *zap.Logger) *Queue {
	if depth <= 0 {
		depth = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		ch:     make(chan item, depth),
		policy: policy,
		logger: logger,
		timers: make(map[*time.Timer]struct{}),
		done:   make(chan struct{}),
	}
}

// OnDeadLetter registers the handler called when a message exhausts its
// retry budget. Must be set before consumers start.
func (q *Queue) OnDeadLetter(fn func(msg scout.QueueMessage, reason string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = fn
}

// Publish enqueues a message for its first delivery.
func (q *Queue) Publish(ctx context.Context, msg scout.QueueMessage) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.ch <- item{msg: msg, attempt: 1}:
		return nil
	case <-q.done:
		return fmt.Errorf("queue is closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue is full")
	}
}

// Dequeue blocks until a delivery is available or the context ends.
func (q *Queue) Dequeue(ctx context.Context) (scout.Delivery, error) {
	select {
	case it, ok := <-q.ch:
		if !ok {
			return scout.Delivery{}, fmt.Errorf("queue is closed")
		}
		return scout.Delivery{
			Message:  it.msg,
			Attempt:  it.attempt,
			AckFunc:  func() {},
			NackFunc: func() { q.redeliver(it) },
		}, nil
	case <-q.done:
		return scout.Delivery{}, fmt.Errorf("queue is closed")
	case <-ctx.Done():
		return scout.Delivery{}, ctx.Err()
	}
}

// redeliver schedules the next attempt, or dead-letters the message once
// the budget is spent.
func (q *Queue) redeliver(it item) {
	if q.policy.Exhausted(it.attempt) {
		q.logger.Warn("message exhausted retry budget",
			zap.String("job_id", it.msg.JobID),
			zap.Int("attempts", it.attempt),
		)
		q.mu.Lock()
		fn := q.deadLetter
		q.mu.Unlock()
		if fn != nil {
			fn(it.msg, "retry attempts exhausted")
		}
		return
	}

	next := item{msg: it.msg, attempt: it.attempt + 1}
	delay := q.policy.Backoff(it.attempt)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.ch <- next:
		case <-q.done:
		}
	})
	q.timers[timer] = struct{}{}
}

// Close stops the queue. Pending redelivery timers are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
}
