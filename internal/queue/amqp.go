package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/recipe-pipeline/shared/rabbitmq"
)

// broker is the part of *rabbitmq.Client the AMQP queue uses
type broker interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
	Close() error
	QueueName() string
}

// AMQPQueue is a Queue backed by a RabbitMQ work queue. Delays and retries
// go through the queue's retry lane; rejected jobs land in its dead lane.
type AMQPQueue struct {
	client      broker
	consumerTag string
	logger      *slog.Logger
}

// NewAMQPQueue wraps a connected RabbitMQ client
func NewAMQPQueue(client broker, consumerTag string, logger *slog.Logger) *AMQPQueue {
	return &AMQPQueue{
		client:      client,
		consumerTag: consumerTag,
		logger:      logger.With(slog.String("queue", client.QueueName())),
	}
}

// Name returns the work queue name
func (q *AMQPQueue) Name() string {
	return q.client.QueueName()
}

// Add publishes a new job
func (q *AMQPQueue) Add(ctx context.Context, jobName string, data any, opts Options) (string, error) {
	env, err := NewEnvelope(q.Name(), jobName, data, opts)
	if err != nil {
		return "", err
	}
	if err := q.publish(ctx, env, opts.Delay); err != nil {
		return "", err
	}

	q.logger.Debug("Job enqueued",
		slog.String("job_id", env.ID),
		slog.String("job_name", jobName),
		slog.Duration("delay", opts.Delay),
	)
	return env.ID, nil
}

func (q *AMQPQueue) publish(ctx context.Context, env Envelope, delay time.Duration) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return q.client.PublishWithRetry(ctx, rabbitmq.Message{
		Body:      body,
		Type:      env.Name,
		MessageID: env.ID,
		Priority:  clampPriority(env.Priority),
		Headers:   amqp.Table{"x-attempt": int32(env.Attempt)},
		Delay:     delay,
	})
}

func clampPriority(p int) uint8 {
	switch {
	case p < 0:
		return 0
	case p > 255:
		return 255
	default:
		return uint8(p)
	}
}

// Consume starts delivering messages; the channel closes when ctx is done or
// the broker stops the consumer
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Message, error) {
	deliveries, err := q.client.Consume(q.consumerTag)
	if err != nil {
		return nil, err
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					q.logger.Warn("Delivery channel closed")
					return
				}

				var env Envelope
				if err := json.Unmarshal(d.Body, &env); err != nil {
					q.logger.Error("Dropping malformed envelope",
						slog.String("message_id", d.MessageId),
						slog.Any("error", err),
					)
					if err := d.Nack(false, false); err != nil {
						q.logger.Error("Failed to nack message", slog.Any("error", err))
					}
					continue
				}

				select {
				case out <- &amqpMessage{queue: q, delivery: d, env: env}:
				case <-ctx.Done():
					// unsettled deliveries are redelivered by the broker
					return
				}
			}
		}
	}()

	return out, nil
}

// Close cancels the consumer and closes the connection
func (q *AMQPQueue) Close() error {
	var errs []error
	if q.consumerTag != "" {
		if err := q.client.Cancel(q.consumerTag); err != nil {
			errs = append(errs, fmt.Errorf("cancel consumer: %w", err))
		}
	}
	if err := q.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type amqpMessage struct {
	queue    *AMQPQueue
	delivery amqp.Delivery
	env      Envelope
}

func (m *amqpMessage) Envelope() Envelope { return m.env }

func (m *amqpMessage) Ack(context.Context) error {
	return m.delivery.Ack(false)
}

// Retry publishes the next attempt to the retry lane before acking this one,
// so a crash in between duplicates the job instead of losing it
func (m *amqpMessage) Retry(ctx context.Context, delay time.Duration) error {
	if err := m.queue.publish(ctx, m.env.next(), delay); err != nil {
		if nackErr := m.delivery.Nack(false, true); nackErr != nil {
			return errors.Join(err, nackErr)
		}
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return m.delivery.Ack(false)
}

func (m *amqpMessage) Reject(_ context.Context, reason error) error {
	m.queue.logger.Warn("Job rejected",
		slog.String("job_id", m.env.ID),
		slog.String("job_name", m.env.Name),
		slog.Int("attempt", m.env.Attempt),
		slog.Bool("removed", m.env.RemoveOnFail),
		slog.Any("reason", reason),
	)
	if m.env.RemoveOnFail {
		return m.delivery.Ack(false)
	}
	// dead-lettered by the queue's x-dead-letter-exchange
	return m.delivery.Nack(false, false)
}

func (m *amqpMessage) Requeue(context.Context) error {
	return m.delivery.Nack(false, true)
}
