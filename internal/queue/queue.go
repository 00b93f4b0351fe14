// Package queue defines the job envelope and the enqueue/consume contracts
// workers run on, with a RabbitMQ implementation and an in-memory one.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultAttempts is how many times a job runs before it is dead-lettered
const DefaultAttempts = 3

// ErrClosed is returned by operations on a closed queue
var ErrClosed = errors.New("queue closed")

// Options tune a single enqueue
type Options struct {
	Priority         int
	Delay            time.Duration
	Attempts         int
	RemoveOnComplete bool
	RemoveOnFail     bool
}

// Envelope is the serialized job travelling through a queue
type Envelope struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Queue            string          `json:"queue"`
	Data             json.RawMessage `json:"data"`
	Attempt          int             `json:"attempt"`
	MaxAttempts      int             `json:"maxAttempts"`
	Priority         int             `json:"priority,omitempty"`
	RemoveOnComplete bool            `json:"removeOnComplete,omitempty"`
	RemoveOnFail     bool            `json:"removeOnFail,omitempty"`
	EnqueuedAt       time.Time       `json:"enqueuedAt"`
}

// NewEnvelope encodes data into a first-attempt envelope
func NewEnvelope(queueName, jobName string, data any, opts Options) (Envelope, error) {
	if jobName == "" {
		return Envelope{}, errors.New("job name is required")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal job data: %w", err)
	}

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	return Envelope{
		ID:               uuid.New().String(),
		Name:             jobName,
		Queue:            queueName,
		Data:             raw,
		Attempt:          1,
		MaxAttempts:      attempts,
		Priority:         opts.Priority,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
		EnqueuedAt:       time.Now().UTC(),
	}, nil
}

// LastAttempt reports whether a failure of this delivery is final
func (e Envelope) LastAttempt() bool {
	return e.Attempt >= e.MaxAttempts
}

// next is the envelope of the following attempt
func (e Envelope) next() Envelope {
	e.Attempt++
	return e
}

// Publisher enqueues jobs onto one queue
type Publisher interface {
	Add(ctx context.Context, jobName string, data any, opts Options) (string, error)
}

// Message is one delivery of a job. Exactly one of Ack, Retry, Reject or
// Requeue must be called.
type Message interface {
	Envelope() Envelope
	// Ack marks the job done
	Ack(ctx context.Context) error
	// Retry schedules the next attempt after delay and settles this delivery
	Retry(ctx context.Context, delay time.Duration) error
	// Reject fails the job for good
	Reject(ctx context.Context, reason error) error
	// Requeue returns the delivery unprocessed, keeping its attempt number
	Requeue(ctx context.Context) error
}

// Consumer delivers messages from one queue until ctx is done or it is closed
type Consumer interface {
	Name() string
	Consume(ctx context.Context) (<-chan Message, error)
}

// Queue is a named queue that can both enqueue and deliver
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// Enqueuer routes jobs to queues by name
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, jobName string, data any, opts Options) (string, error)
}

// Router is an Enqueuer over a fixed set of publishers
type Router map[string]Publisher

// Enqueue adds the job to the named queue
func (r Router) Enqueue(ctx context.Context, queueName, jobName string, data any, opts Options) (string, error) {
	p, ok := r[queueName]
	if !ok {
		return "", fmt.Errorf("no publisher for queue %q", queueName)
	}
	return p.Add(ctx, jobName, data, opts)
}

// Defaults fills the unset options of every job added through Publisher
type Defaults struct {
	Publisher
	Attempts int
	Priority int
}

// Add enqueues with the defaults applied
func (d Defaults) Add(ctx context.Context, jobName string, data any, opts Options) (string, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = d.Attempts
	}
	if opts.Priority == 0 {
		opts.Priority = d.Priority
	}
	return d.Publisher.Add(ctx, jobName, data, opts)
}
