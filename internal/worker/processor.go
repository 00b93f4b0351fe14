package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/domain"
)

// processJob runs one delivery through its pipeline and settles it
func (w *Worker[D, X]) processJob(ctx context.Context, workerName string, msg queue.Message) {
	env := msg.Envelope()
	logger := w.logger.With(
		slog.String("job_id", env.ID),
		slog.String("job_name", env.Name),
		slog.String("worker_name", workerName),
		slog.Int("attempt", env.Attempt),
	)

	logger.Info("Processing job")

	// Step 1: Decode job data
	var data D
	if err := json.Unmarshal(env.Data, &data); err != nil {
		logger.Error("Failed to parse job payload", slog.Any("error", err))
		w.reject(ctx, logger, msg, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
		return
	}

	actx := &pipeline.ActionContext{
		JobID:         env.ID,
		QueueName:     w.Name(),
		WorkerName:    workerName,
		Operation:     env.Name,
		AttemptNumber: env.Attempt,
		StartTime:     time.Now(),
	}

	// Step 2: Build the pipeline
	// A builder may hand back a completion check alongside its error
	p, err := w.cfg.Builder(data, actx, w.cfg.Deps)
	if err != nil {
		logger.Error("Failed to build pipeline",
			slog.String("error_kind", string(w.cfg.Classifier(err))),
			slog.Any("error", err),
		)
		data, err = w.runFinal(ctx, logger, p.Final, data, actx, env, err)
		w.settle(ctx, logger, msg, data, err)
		return
	}

	// Step 3: Run the steps, stopping at the first failure
	data, err = w.runSteps(ctx, logger, p.Steps, data, actx)

	// Step 4: Completion check
	data, err = w.runFinal(ctx, logger, p.Final, data, actx, env, err)

	// Step 5: Ack, retry or reject
	w.settle(ctx, logger, msg, data, err)

	if err == nil {
		logger.Info("Job completed successfully",
			slog.Duration("duration", actx.Elapsed()),
			slog.Int("actions", p.Len()),
		)
	}
}

func (w *Worker[D, X]) runSteps(ctx context.Context, logger *slog.Logger, steps []pipeline.Action[D, X], data D, actx *pipeline.ActionContext) (D, error) {
	for _, step := range steps {
		wrapped := pipeline.Wrap(step, pipeline.WrapOptions{
			Retry:      w.cfg.Retry,
			Timeout:    w.cfg.ActionTimeout,
			Classifier: w.cfg.Classifier,
			Logger:     logger,
		})

		result := pipeline.ExecuteWithTiming(ctx, wrapped, data, w.cfg.Deps, actx)
		if !result.Success {
			logger.Error("Action failed",
				slog.String("action", result.Action),
				slog.Duration("duration", result.Duration),
				slog.String("error_kind", string(w.cfg.Classifier(result.Err))),
				slog.Any("error", result.Err),
			)
			return result.Data, result.Err
		}

		logger.Debug("Action completed",
			slog.String("action", result.Action),
			slog.Duration("duration", result.Duration),
		)
		data = result.Data
	}
	return data, nil
}

// runFinal runs the completion check. A failed job is only counted when it
// will not be attempted again; its own error wins over a failed check.
func (w *Worker[D, X]) runFinal(ctx context.Context, logger *slog.Logger, final pipeline.Action[D, X], data D, actx *pipeline.ActionContext, env queue.Envelope, jobErr error) (D, error) {
	if final == nil || (jobErr != nil && w.willRetry(jobErr, env)) {
		return data, jobErr
	}

	data, finalErr := w.runSteps(ctx, logger, []pipeline.Action[D, X]{final}, data, actx)
	if jobErr != nil {
		return data, jobErr
	}
	return data, finalErr
}

// willRetry reports whether err on this delivery leads to another attempt
func (w *Worker[D, X]) willRetry(err error, env queue.Envelope) bool {
	return w.cfg.Classifier(err).Retryable() && !env.LastAttempt()
}

func (w *Worker[D, X]) settle(ctx context.Context, logger *slog.Logger, msg queue.Message, data D, jobErr error) {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()

	env := msg.Envelope()

	if jobErr == nil {
		if err := msg.Ack(settleCtx); err != nil {
			logger.Error("Failed to ack message", slog.Any("error", err))
		}
		return
	}

	if w.willRetry(jobErr, env) {
		delay := w.cfg.Backoff.Delay(env.Attempt)
		logger.Info("Job will be retried",
			slog.Int("max_attempts", env.MaxAttempts),
			slog.Duration("retry_after", delay),
		)
		if err := msg.Retry(settleCtx, delay); err != nil {
			logger.Error("Failed to schedule retry", slog.Any("error", err))
		}
		return
	}

	if env.LastAttempt() && w.cfg.Classifier(jobErr).Retryable() {
		logger.Warn("Job exceeded max attempts",
			slog.Int("max_attempts", env.MaxAttempts),
		)
		jobErr = fmt.Errorf("%w: %w", domain.ErrMaxAttemptsExceeded, jobErr)
	}

	w.announceFailure(settleCtx, logger, env, data, jobErr)
	w.reject(settleCtx, logger, msg, jobErr)
}

// announceFailure broadcasts FAILED for jobs that belong to a note
func (w *Worker[D, X]) announceFailure(ctx context.Context, logger *slog.Logger, env queue.Envelope, data D, jobErr error) {
	if w.cfg.Tracking == nil || w.cfg.Broadcaster == nil {
		return
	}
	t := w.cfg.Tracking(data)
	if t.ImportID == "" {
		return
	}

	event := status.Failed(t.ImportID, t.NoteID, env.Name, jobErr)
	if err := w.cfg.Broadcaster.AddStatusEventAndBroadcast(ctx, event); err != nil {
		logger.Warn("Failed to broadcast job failure",
			slog.String("error_kind", string(pipeline.KindBroadcast)),
			slog.Any("error", err),
		)
	}
}

func (w *Worker[D, X]) reject(ctx context.Context, logger *slog.Logger, msg queue.Message, reason error) {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()

	if err := msg.Reject(settleCtx, reason); err != nil {
		logger.Error("Failed to reject message", slog.Any("error", err))
	}

	var actionErr *pipeline.ActionError
	if errors.As(reason, &actionErr) {
		logger.Error("Job failed",
			slog.String("action", actionErr.Action),
			slog.String("error_kind", string(actionErr.Kind)),
			slog.Int("action_attempts", actionErr.Attempts),
		)
		return
	}
	logger.Error("Job failed", slog.Any("error", reason))
}
