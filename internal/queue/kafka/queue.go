// Package kafka implements the job queue on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
)

// How long an offset commit may take once a delivery is acked.
const commitTimeout = 10 * time.Second

// Config identifies the brokers, topic, and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type retryItem struct {
	kmsg    kafka.Message
	msg     scout.QueueMessage
	attempt int
}

// consumer is the slice of kafka.Reader the queue uses.
type consumer interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue publishes job messages to a Kafka topic and consumes them through a
// consumer group. Kafka has no per-message redelivery, so a nacked delivery
// is retried in process with backoff; once the retry budget is spent the
// dead-letter handler runs. An offset is committed only after the delivery
// is acked or dead-lettered, so a crash mid-processing re-reads the message
// when the group rebalances. Committing an offset also commits everything
// before it, which narrows that guarantee for an earlier message still in
// its backoff window.
type Queue struct {
	writer *kafka.Writer
	reader consumer
	policy scout.RetryPolicy
	logger *zap.Logger

	fetched chan retryItem
	retries chan retryItem

	startOnce sync.Once
	cancel    context.CancelFunc
	fetching  sync.WaitGroup

	mu         sync.Mutex
	deadLetter func(msg scout.QueueMessage, reason string)
	timers     map[*time.Timer]struct{}
	closed     bool
	done       chan struct{}
}

// New builds the writer and consumer-group reader for the configured topic.
func New(cfg Config, policy scout.RetryPolicy, logger *zap.Logger) (*Queue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})

	return &Queue{
		writer:  writer,
		reader:  reader,
		policy:  policy,
		logger:  logger,
		fetched: make(chan retryItem),
		retries: make(chan retryItem, 64),
		timers:  make(map[*time.Timer]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// OnDeadLetter registers the handler called when a message exhausts its
// retry budget. Must be set before consumers start.
func (q *Queue) OnDeadLetter(fn func(msg scout.QueueMessage, reason string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetter = fn
}

// Publish writes the message and blocks until the brokers acknowledge it.
func (q *Queue) Publish(ctx context.Context, msg scout.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.JobID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

// Dequeue blocks until a delivery arrives or the context ends, whichever of
// an in-process retry or a fresh topic message is ready first. The first
// call starts the fetch loop.
func (q *Queue) Dequeue(ctx context.Context) (scout.Delivery, error) {
	q.startOnce.Do(func() { q.startFetching() })

	select {
	case it := <-q.retries:
		return q.delivery(it), nil
	case it, ok := <-q.fetched:
		if !ok {
			return scout.Delivery{}, fmt.Errorf("kafka queue is closed")
		}
		return q.delivery(it), nil
	case <-q.done:
		return scout.Delivery{}, fmt.Errorf("kafka queue is closed")
	case <-ctx.Done():
		return scout.Delivery{}, ctx.Err()
	}
}

func (q *Queue) startFetching() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.fetching.Add(1)
	go func() {
		defer q.fetching.Done()
		defer close(q.fetched)

		for {
			m, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					q.logger.Error("kafka fetch terminated", zap.Error(err))
				}
				return
			}

			var msg scout.QueueMessage
			if err := json.Unmarshal(m.Value, &msg); err != nil {
				q.logger.Error("dropping malformed queue message",
					zap.Error(err),
					zap.Int64("offset", m.Offset),
				)
				q.commit(m)
				continue
			}

			select {
			case q.fetched <- retryItem{kmsg: m, msg: msg, attempt: 1}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (q *Queue) delivery(it retryItem) scout.Delivery {
	return scout.Delivery{
		Message:  it.msg,
		Attempt:  it.attempt,
		AckFunc:  func() { q.commit(it.kmsg) },
		NackFunc: func() { q.redeliver(it) },
	}
}

func (q *Queue) commit(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := q.reader.CommitMessages(ctx, m); err != nil {
		q.logger.Error("commit kafka offset",
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
	}
}

func (q *Queue) redeliver(it retryItem) {
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
		// Dead-lettered means handled. The offset must not hold up the
		// consumer group.
		q.commit(it.kmsg)
		return
	}

	next := retryItem{kmsg: it.kmsg, msg: it.msg, attempt: it.attempt + 1}
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
		case q.retries <- next:
		case <-q.done:
		}
	})
	q.timers[timer] = struct{}{}
}

// Close stops the fetch loop, reader, and writer. Pending retry timers are
// dropped; their uncommitted offsets are re-read by the next consumer.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
		q.fetching.Wait()
	}

	readerErr := q.reader.Close()
	writerErr := q.writer.Close()
	if readerErr != nil {
		return fmt.Errorf("close kafka reader: %w", readerErr)
	}
	if writerErr != nil {
		return fmt.Errorf("close kafka writer: %w", writerErr)
	}
	return nil
}
