package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested delays without waiting
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func countingAction(name string, failures int, err error, opts ...Option) (Action[testData, testDeps], *int) {
	calls := 0
	return NewAction(name, func(_ context.Context, d testData, _ testDeps, _ *ActionContext) (testData, error) {
		calls++
		if calls <= failures {
			return d, err
		}
		d.Value++
		return d, nil
	}, opts...), &calls
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, Backoff: time.Second, MaxBackoff: 30 * time.Second}

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, policy.Delay(i+1), "retry %d", i+1)
	}

	assert.Equal(t, time.Second, policy.Delay(0))
	assert.Equal(t, DefaultBackoff, RetryPolicy{}.Delay(1))
	assert.Equal(t, DefaultRetryPolicy().MaxRetries, 3)
}

func TestWithRetry_TransientBoundary(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := RetryPolicy{MaxRetries: 3, Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Sleep: sleeper.Sleep}

	inner, calls := countingAction("save_ingredient", 100, Transient(errors.New("connection reset")))
	actx := &ActionContext{}

	_, err := WithErrorHandling(WithRetry(inner, policy, Classify, nil), Classify).
		Execute(context.Background(), testData{}, testDeps{}, actx)

	require.Error(t, err)
	assert.Equal(t, 4, *calls, "one attempt plus MaxRetries retries")
	assert.Equal(t, 3, actx.RetryCount)

	require.Len(t, sleeper.delays, 3)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, sleeper.delays)
	for i := 1; i < len(sleeper.delays); i++ {
		assert.Greater(t, sleeper.delays[i], sleeper.delays[i-1])
	}

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, KindTransient, actionErr.Kind)
	assert.Equal(t, 4, actionErr.Attempts)
	assert.Equal(t, "save_ingredient", actionErr.Action)
}

func TestWithRetry_RecoversBeforeBudget(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := RetryPolicy{MaxRetries: 3, Backoff: time.Millisecond, Sleep: sleeper.Sleep}

	inner, calls := countingAction("parse", 2, Transient(errors.New("timeout")))
	out, err := WithRetry(inner, policy, nil, nil).Execute(context.Background(), testData{Value: 1}, testDeps{}, &ActionContext{})

	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 2, out.Value)
	assert.Len(t, sleeper.delays, 2)
}

func TestWithRetry_NoRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		opts []Option
	}{
		{name: "validation error", err: Validationf("empty reference")},
		{name: "unknown action", err: &UnknownActionError{Name: "nope"}},
		{name: "non-retryable action", err: Transient(errors.New("io")), opts: []Option{NonRetryable()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &recordingSleeper{}
			inner, calls := countingAction("a", 100, tt.err, tt.opts...)

			_, err := WithRetry(inner, RetryPolicy{MaxRetries: 5, Sleep: sleeper.Sleep}, Classify, nil).
				Execute(context.Background(), testData{}, testDeps{}, nil)

			require.Error(t, err)
			assert.Equal(t, 1, *calls)
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestWithRetry_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	inner := NewAction("a", func(_ context.Context, d testData, _ testDeps, _ *ActionContext) (testData, error) {
		calls++
		cancel()
		return d, Transient(errors.New("io"))
	})

	_, err := WithRetry(inner, RetryPolicy{MaxRetries: 5, Backoff: time.Hour}, Classify, nil).
		Execute(ctx, testData{}, testDeps{}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTimeout(t *testing.T) {
	slow := NewAction("categorize", func(ctx context.Context, d testData, _ testDeps, _ *ActionContext) (testData, error) {
		<-ctx.Done()
		return d, ctx.Err()
	})

	_, err := WithTimeout(slow, 10*time.Millisecond).Execute(context.Background(), testData{}, testDeps{}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, KindTransient, Classify(err))

	assert.Same(t, slow, WithTimeout(slow, 0))
}

func TestWrap_PreservesIdentity(t *testing.T) {
	inner := failingAction("check_completion", nil, NonRetryable(), WithPriority(100))
	wrapped := Wrap(inner, WrapOptions{Timeout: time.Second, Retry: DefaultRetryPolicy()})

	assert.Equal(t, "check_completion", wrapped.Name())
	assert.False(t, wrapped.Retryable())
	assert.Equal(t, 100, wrapped.Priority())
}

func TestWithErrorHandling_ClassifiesOnce(t *testing.T) {
	inner := failingAction("save_note", Validationf("missing title"))
	handled := WithErrorHandling(WithErrorHandling(inner, Classify), func(error) Kind { return KindTransient })

	_, err := handled.Execute(context.Background(), testData{}, testDeps{}, nil)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, KindValidation, actionErr.Kind, "inner classification is kept")
	assert.Equal(t, 1, actionErr.Attempts)
}
