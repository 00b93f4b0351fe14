package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Queue used by tests and single-process runs.
// Delays are honoured with timers; priority is ignored.
type Memory struct {
	name string

	mu        sync.Mutex
	pending   chan Envelope
	done      chan struct{}
	timers    map[*time.Timer]struct{}
	completed []Envelope
	failed    []Envelope
	retries   int
	closed    bool
}

// NewMemory creates a queue buffering up to size ready jobs
func NewMemory(name string, size int) *Memory {
	if size <= 0 {
		size = 128
	}
	return &Memory{
		name:    name,
		pending: make(chan Envelope, size),
		done:    make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
}

func (q *Memory) Name() string { return q.name }

func (q *Memory) Add(ctx context.Context, jobName string, data any, opts Options) (string, error) {
	env, err := NewEnvelope(q.name, jobName, data, opts)
	if err != nil {
		return "", err
	}
	if err := q.schedule(ctx, env, opts.Delay); err != nil {
		return "", err
	}
	return env.ID, nil
}

func (q *Memory) schedule(ctx context.Context, env Envelope, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if delay > 0 {
		var timer *time.Timer
		timer = time.AfterFunc(delay, func() {
			q.mu.Lock()
			delete(q.timers, timer)
			q.mu.Unlock()

			select {
			case q.pending <- env:
			case <-q.done:
			}
		})
		q.timers[timer] = struct{}{}
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	select {
	case q.pending <- env:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case env := <-q.pending:
				select {
				case out <- &memoryMessage{queue: q, env: env}:
				case <-ctx.Done():
					return
				case <-q.done:
					return
				}
			}
		}
	}()
	return out, nil
}

// Close stops pending timers and ends every consumer
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	close(q.done)
	return nil
}

// Completed returns acked jobs that were not marked RemoveOnComplete
func (q *Memory) Completed() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Envelope(nil), q.completed...)
}

// Failed returns rejected jobs that were not marked RemoveOnFail
func (q *Memory) Failed() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Envelope(nil), q.failed...)
}

// Len returns how many jobs are ready for delivery
func (q *Memory) Len() int {
	return len(q.pending)
}

// Retries returns how many retries were scheduled
func (q *Memory) Retries() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.retries
}

type memoryMessage struct {
	queue *Memory
	env   Envelope
}

func (m *memoryMessage) Envelope() Envelope { return m.env }

func (m *memoryMessage) Ack(context.Context) error {
	m.queue.mu.Lock()
	defer m.queue.mu.Unlock()
	if !m.env.RemoveOnComplete {
		m.queue.completed = append(m.queue.completed, m.env)
	}
	return nil
}

func (m *memoryMessage) Retry(ctx context.Context, delay time.Duration) error {
	m.queue.mu.Lock()
	m.queue.retries++
	m.queue.mu.Unlock()

	if delay <= 0 {
		// an immediate send could block on a full buffer while the consumer waits on us
		delay = time.Millisecond
	}
	return m.queue.schedule(ctx, m.env.next(), delay)
}

func (m *memoryMessage) Reject(context.Context, error) error {
	m.queue.mu.Lock()
	defer m.queue.mu.Unlock()
	if !m.env.RemoveOnFail {
		m.queue.failed = append(m.queue.failed, m.env)
	}
	return nil
}

func (m *memoryMessage) Requeue(ctx context.Context) error {
	return m.queue.schedule(ctx, m.env, time.Millisecond)
}
