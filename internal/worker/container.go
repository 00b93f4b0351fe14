package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/recipe"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/actions"
)

// Runner is a worker as seen by the container
type Runner interface {
	Name() string
	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// ContainerConfig holds everything the workers of a process share
type ContainerConfig struct {
	Logger *slog.Logger
	Deps   actions.Deps

	// Queues maps recipe queue names to their queue; one worker is started per entry
	Queues map[string]queue.Queue
	// Concurrency returns the worker count of a queue; defaults to 1
	Concurrency func(queueName string) int

	Retry         pipeline.RetryPolicy
	Backoff       pipeline.RetryPolicy
	ActionTimeout time.Duration

	// Closed after every worker and queue, in this order
	Database io.Closer
	Redis    io.Closer
}

// Container owns the workers, queues and connections of a worker process
type Container struct {
	logger   *slog.Logger
	workers  []Runner
	queues   map[string]queue.Queue
	database io.Closer
	redis    io.Closer
	closed   *atomic.Bool
}

// NewContainer builds one worker per configured recipe queue
func NewContainer(cfg ContainerConfig) (*Container, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Concurrency == nil {
		cfg.Concurrency = func(string) int { return 1 }
	}
	if cfg.Deps.Logger == nil {
		cfg.Deps.Logger = cfg.Logger
	}
	if cfg.Deps.Queues == nil {
		router := queue.Router{}
		for name, q := range cfg.Queues {
			router[name] = q
		}
		cfg.Deps.Queues = router
	}

	c := &Container{
		logger:   cfg.Logger,
		queues:   cfg.Queues,
		database: cfg.Database,
		redis:    cfg.Redis,
		closed:   atomic.NewBool(false),
	}

	for _, name := range recipe.Queues {
		q, ok := cfg.Queues[name]
		if !ok {
			continue
		}

		var (
			w   Runner
			err error
		)
		switch name {
		case recipe.QueueNote:
			w, err = newRunner(actions.Note(), q, cfg)
		case recipe.QueueIngredient:
			w, err = newRunner(actions.Ingredient(), q, cfg)
		case recipe.QueueInstruction:
			w, err = newRunner(actions.Instruction(), q, cfg)
		case recipe.QueueImage:
			w, err = newRunner(actions.Image(), q, cfg)
		case recipe.QueueCategorization:
			w, err = newRunner(actions.Categorization(), q, cfg)
		case recipe.QueuePatternTracking:
			w, err = newRunner(actions.Pattern(), q, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s worker: %w", name, err)
		}
		c.workers = append(c.workers, w)
	}

	for name := range cfg.Queues {
		if !isRecipeQueue(name) {
			return nil, fmt.Errorf("no worker definition for queue %q", name)
		}
	}

	return c, nil
}

func isRecipeQueue(name string) bool {
	for _, q := range recipe.Queues {
		if q == name {
			return true
		}
	}
	return false
}

func newRunner[D any](def actions.Definition[D], q queue.Queue, cfg ContainerConfig) (Runner, error) {
	w, err := New(Config[D, actions.Deps]{
		Queue:         q,
		Builder:       def.Builder,
		Deps:          cfg.Deps,
		Concurrency:   cfg.Concurrency(def.Queue),
		Retry:         cfg.Retry,
		Backoff:       cfg.Backoff,
		ActionTimeout: cfg.ActionTimeout,
		Tracking:      def.Tracking,
		Broadcaster:   cfg.Deps.Broadcaster,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Workers returns the managed workers
func (c *Container) Workers() []Runner {
	return c.workers
}

// Start starts every worker
func (c *Container) Start(ctx context.Context) error {
	for _, w := range c.workers {
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s worker: %w", w.Name(), err)
		}
	}

	c.logger.Info("All workers started", slog.Int("workers", len(c.workers)))
	return nil
}

// Close shuts down every worker and every queue even if some of them fail,
// then the database, then Redis. The joined error reports every failure.
func (c *Container) Close(ctx context.Context) error {
	if !c.closed.CAS(false, true) {
		return nil
	}

	c.logger.Info("Shutting down workers", slog.Int("workers", len(c.workers)))

	errs := make([]error, 0, len(c.workers)+len(c.queues)+2)

	workerErrs := make([]error, len(c.workers))
	g := new(errgroup.Group)
	for i, w := range c.workers {
		g.Go(func() error {
			if err := closeWithContext(ctx, func() error { return w.Close(ctx) }); err != nil {
				workerErrs[i] = fmt.Errorf("worker %s: %w", w.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	errs = append(errs, workerErrs...)

	queueErrs := make([]error, 0, len(c.queues))
	results := make(chan error, len(c.queues))
	g = new(errgroup.Group)
	for name, q := range c.queues {
		g.Go(func() error {
			if err := closeWithContext(ctx, q.Close); err != nil {
				results <- fmt.Errorf("queue %s: %w", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for err := range results {
		queueErrs = append(queueErrs, err)
	}
	errs = append(errs, queueErrs...)

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Error("Worker shutdown completed with errors", slog.Any("error", err))
		return err
	}

	c.logger.Info("Worker shutdown completed")
	return nil
}

// closeWithContext gives up waiting on fn once ctx is done
func closeWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
