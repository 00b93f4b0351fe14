// Package worker runs action pipelines for the jobs of one queue and wires
// one worker per queue into a Container.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/domain"
)

// settleTimeout bounds acking or retrying a finished job
const settleTimeout = 10 * time.Second

// Config holds worker configuration
type Config[D, X any] struct {
	// ID prefixes the goroutine names; defaults to "<queue>-<uuid>"
	ID          string
	Queue       queue.Consumer
	Builder     pipeline.Builder[D, X]
	Deps        X
	Concurrency int

	// Retry is the in-process policy of each action
	Retry pipeline.RetryPolicy
	// Backoff spaces queue level attempts of a failed job
	Backoff       pipeline.RetryPolicy
	ActionTimeout time.Duration
	Classifier    pipeline.Classifier

	// Tracking and Broadcaster, when set, announce jobs that fail for good
	Tracking    func(D) pipeline.Tracking
	Broadcaster status.Broadcaster

	Logger *slog.Logger
}

// Worker represents the background job worker of one queue
type Worker[D, X any] struct {
	cfg      Config[D, X]
	workerID string
	logger   *slog.Logger

	jobsChan chan queue.Message
	wg       sync.WaitGroup

	stopDispatch context.CancelFunc
	cancelJobs   context.CancelFunc

	started *atomic.Bool
	closing *atomic.Bool
}

// New creates a worker; Start begins consuming
func New[D, X any](cfg Config[D, X]) (*Worker[D, X], error) {
	if cfg.Queue == nil {
		return nil, errors.New("worker requires a queue")
	}
	if cfg.Builder == nil {
		return nil, errors.New("worker requires a pipeline builder")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Classifier == nil {
		cfg.Classifier = pipeline.Classify
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	workerID := cfg.ID
	if workerID == "" {
		workerID = fmt.Sprintf("%s-%s", cfg.Queue.Name(), uuid.New().String()[:8])
	}

	return &Worker[D, X]{
		cfg:      cfg,
		workerID: workerID,
		logger:   cfg.Logger.With(slog.String("queue", cfg.Queue.Name()), slog.String("worker_id", workerID)),
		jobsChan: make(chan queue.Message),
		started:  atomic.NewBool(false),
		closing:  atomic.NewBool(false),
	}, nil
}

// Name returns the queue the worker serves
func (w *Worker[D, X]) Name() string {
	return w.cfg.Queue.Name()
}

// Start begins processing jobs and returns once consuming has started
func (w *Worker[D, X]) Start(ctx context.Context) error {
	if w.closing.Load() {
		return domain.ErrWorkerClosed
	}
	if !w.started.CAS(false, true) {
		return domain.ErrWorkerStarted
	}

	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.cfg.Concurrency),
		slog.Duration("action_timeout", w.cfg.ActionTimeout),
		slog.Int("max_retries", w.cfg.Retry.MaxRetries),
	)

	// in-flight jobs outlive the dispatcher so Close can drain them
	jobsCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	w.cancelJobs, w.stopDispatch = cancelJobs, stopDispatch

	messages, err := w.cfg.Queue.Consume(dispatchCtx)
	if err != nil {
		stopDispatch()
		cancelJobs()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnWorkerPool(jobsCtx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(dispatchCtx, messages)
	}()

	w.logger.Info("Worker started")
	return nil
}

// Close stops taking new jobs and waits for in-flight ones. When ctx ends
// first the remaining jobs are canceled and ctx's error is returned.
func (w *Worker[D, X]) Close(ctx context.Context) error {
	if !w.closing.CAS(false, true) {
		return nil
	}
	if !w.started.Load() {
		return nil
	}

	w.logger.Info("Stopping worker...")
	w.stopDispatch()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.cancelJobs()
		w.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		w.cancelJobs()
		<-done
		w.logger.Warn("Worker shutdown timeout exceeded, in-flight jobs canceled")
		return fmt.Errorf("worker %s: %w", w.workerID, ctx.Err())
	}
}
