// Package pubsub implements the job queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
)

// Config identifies the topic and subscription the queue is bound to.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Queue publishes job messages to a Pub/Sub topic and consumes them from a
// subscription. Redelivery of nacked messages is handled by Pub/Sub itself;
// the broker's dead-letter policy applies once the delivery attempts run out.
type Queue struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	deliveries chan scout.Delivery

	startOnce sync.Once
	cancel    context.CancelFunc
	receiving sync.WaitGroup
}

// New creates a client and verifies the topic and subscription exist. It
// authenticates with Application Default Credentials.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	sub := client.Subscription(cfg.SubscriptionID)
	exists, err = sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub subscription %q: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.SubscriptionID, cfg.ProjectID)
	}

	return &Queue{
		client:     client,
		topic:      topic,
		sub:        sub,
		logger:     logger,
		deliveries: make(chan scout.Delivery),
	}, nil
}

// Publish sends the message and blocks until the broker acknowledges it, so
// a returned nil means the job is durably enqueued.
func (q *Queue) Publish(ctx context.Context, msg scout.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": msg.JobID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Dequeue blocks until a delivery arrives or the context ends. The first
// call starts the subscription's receive loop.
func (q *Queue) Dequeue(ctx context.Context) (scout.Delivery, error) {
	q.startOnce.Do(func() { q.startReceiving() })

	select {
	case d, ok := <-q.deliveries:
		if !ok {
			return scout.Delivery{}, fmt.Errorf("pubsub queue is closed")
		}
		return d, nil
	case <-ctx.Done():
		return scout.Delivery{}, ctx.Err()
	}
}

func (q *Queue) startReceiving() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel

	q.receiving.Add(1)
	go func() {
		defer q.receiving.Done()
		defer close(q.deliveries)

		err := q.sub.Receive(ctx, func(_ context.Context, m *pubsub.Message) {
			var msg scout.QueueMessage
			if err := json.Unmarshal(m.Data, &msg); err != nil {
				q.logger.Error("dropping malformed queue message", zap.Error(err))
				m.Ack()
				return
			}
			attempt := 1
			if m.DeliveryAttempt != nil {
				attempt = *m.DeliveryAttempt
			}
			select {
			case q.deliveries <- scout.Delivery{
				Message:  msg,
				Attempt:  attempt,
				AckFunc:  m.Ack,
				NackFunc: m.Nack,
			}:
			case <-ctx.Done():
				m.Nack()
			}
		})
		if err != nil && ctx.Err() == nil {
			q.logger.Error("pubsub receive terminated", zap.Error(err))
		}
	}()
}

// Close stops the receive loop and closes the client.
func (q *Queue) Close() error {
	if q.cancel != nil {
		q.cancel()
		q.receiving.Wait()
	}
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
