package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// retryAction re-executes the inner action on retryable failures
type retryAction[D, X any] struct {
	Action[D, X]
	policy   RetryPolicy
	classify Classifier
	logger   *slog.Logger
}

// WithRetry retries the action up to policy.MaxRetries times on failures the
// classifier deems retryable. Actions that declare Retryable() == false run once.
func WithRetry[D, X any](action Action[D, X], policy RetryPolicy, classify Classifier, logger *slog.Logger) Action[D, X] {
	if classify == nil {
		classify = Classify
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &retryAction[D, X]{Action: action, policy: policy, classify: classify, logger: logger}
}

func (a *retryAction[D, X]) Execute(ctx context.Context, data D, deps X, actx *ActionContext) (D, error) {
	attempt := 0
	for {
		attempt++
		if actx != nil {
			actx.RetryCount = attempt - 1
		}

		out, err := a.Action.Execute(ctx, data, deps, actx)
		if err == nil {
			return out, nil
		}

		retry := attempt // number of the retry we would run next
		if !a.Action.Retryable() || !a.classify(err).Retryable() || retry > a.policy.MaxRetries || ctx.Err() != nil {
			return data, &attemptsError{attempts: attempt, err: err}
		}

		delay := a.policy.Delay(retry)
		a.logger.Warn("Action failed, retrying",
			slog.String("action", a.Action.Name()),
			slog.Int("retry", retry),
			slog.Int("max_retries", a.policy.MaxRetries),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)

		if sleepErr := a.policy.sleep(ctx, delay); sleepErr != nil {
			return data, &attemptsError{attempts: attempt, err: err}
		}
	}
}

// timeoutAction bounds each execution of the inner action
type timeoutAction[D, X any] struct {
	Action[D, X]
	timeout time.Duration
}

// WithTimeout cancels the action's context after d. A timeout is reported as a
// transient failure. d <= 0 returns the action unchanged.
func WithTimeout[D, X any](action Action[D, X], d time.Duration) Action[D, X] {
	if d <= 0 {
		return action
	}
	return &timeoutAction[D, X]{Action: action, timeout: d}
}

func (a *timeoutAction[D, X]) Execute(ctx context.Context, data D, deps X, actx *ActionContext) (D, error) {
	actionCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := a.Action.Execute(actionCtx, data, deps, actx)
	if err != nil && errors.Is(actionCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return data, Transient(fmt.Errorf("action %s timed out after %s: %w", a.Action.Name(), a.timeout, err))
	}
	return out, err
}

// errorHandlingAction classifies failures into *ActionError
type errorHandlingAction[D, X any] struct {
	Action[D, X]
	classify Classifier
}

// WithErrorHandling converts every failure of the action into an *ActionError
// carrying the classified Kind and the number of attempts made.
func WithErrorHandling[D, X any](action Action[D, X], classify Classifier) Action[D, X] {
	if classify == nil {
		classify = Classify
	}
	return &errorHandlingAction[D, X]{Action: action, classify: classify}
}

func (a *errorHandlingAction[D, X]) Execute(ctx context.Context, data D, deps X, actx *ActionContext) (D, error) {
	out, err := a.Action.Execute(ctx, data, deps, actx)
	if err == nil {
		return out, nil
	}

	var actionErr *ActionError
	if errors.As(err, &actionErr) {
		return data, err
	}

	return data, &ActionError{
		Action:   a.Action.Name(),
		Kind:     a.classify(err),
		Attempts: attemptsOf(err),
		Err:      err,
	}
}

// WrapOptions configures the uniform wrapping applied by Wrap
type WrapOptions struct {
	Retry      RetryPolicy
	Timeout    time.Duration
	Classifier Classifier
	Logger     *slog.Logger
}

// Wrap applies timeout, retry and error classification, innermost first
func Wrap[D, X any](action Action[D, X], opts WrapOptions) Action[D, X] {
	wrapped := WithTimeout(action, opts.Timeout)
	wrapped = WithRetry(wrapped, opts.Retry, opts.Classifier, opts.Logger)
	return WithErrorHandling(wrapped, opts.Classifier)
}
