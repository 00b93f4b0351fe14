package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Action is one named unit of work in a job pipeline.
//
// D is the job data flowing through the pipeline and X the dependency bundle.
// Execute returns the data for the next action, possibly augmented. Actions keep
// no state between calls and must tolerate being executed again with the same
// input, since the worker retries them.
type Action[D, X any] interface {
	Name() string
	Retryable() bool
	Priority() int
	Execute(ctx context.Context, data D, deps X, actx *ActionContext) (D, error)
}

// ExecuteFunc is the body of a function-backed action
type ExecuteFunc[D, X any] func(ctx context.Context, data D, deps X, actx *ActionContext) (D, error)

type actionSettings struct {
	retryable bool
	priority  int
}

// Option tunes a function-backed action
type Option func(*actionSettings)

// NonRetryable disables in-process retries for the action
func NonRetryable() Option {
	return func(s *actionSettings) { s.retryable = false }
}

// WithPriority sets the informational priority used when ordering pipelines
func WithPriority(priority int) Option {
	return func(s *actionSettings) { s.priority = priority }
}

type funcAction[D, X any] struct {
	name     string
	fn       ExecuteFunc[D, X]
	settings actionSettings
}

// NewAction builds an action from a function. Actions are retryable by default.
func NewAction[D, X any](name string, fn ExecuteFunc[D, X], opts ...Option) Action[D, X] {
	settings := actionSettings{retryable: true}
	for _, opt := range opts {
		opt(&settings)
	}
	return &funcAction[D, X]{name: name, fn: fn, settings: settings}
}

func (a *funcAction[D, X]) Name() string    { return a.name }
func (a *funcAction[D, X]) Retryable() bool { return a.settings.retryable }
func (a *funcAction[D, X]) Priority() int   { return a.settings.priority }

func (a *funcAction[D, X]) Execute(ctx context.Context, data D, deps X, actx *ActionContext) (D, error) {
	return a.fn(ctx, data, deps, actx)
}

// Result is the uniform outcome of a timed action execution
type Result[D any] struct {
	Action   string
	Success  bool
	Data     D
	Err      error
	Duration time.Duration
}

// ExecuteWithTiming runs the action and captures its wall-clock duration.
// It never panics: a panic inside the action becomes a failed Result, and on
// failure Data carries the unchanged input.
func ExecuteWithTiming[D, X any](ctx context.Context, action Action[D, X], data D, deps X, actx *ActionContext) (result Result[D]) {
	start := time.Now()
	result = Result[D]{Action: action.Name(), Data: data}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Data = data
			result.Err = fmt.Errorf("action %s panicked: %v\n%s", action.Name(), r, debug.Stack())
		}
		result.Duration = time.Since(start)
	}()

	out, err := action.Execute(ctx, data, deps, actx)
	if err != nil {
		result.Err = err
		return result
	}

	result.Success = true
	result.Data = out
	return result
}
