package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
	"github.com/cuongbtq/recipe-pipeline/internal/queue"
	"github.com/cuongbtq/recipe-pipeline/internal/status"
	"github.com/cuongbtq/recipe-pipeline/internal/status/statustest"
	"github.com/cuongbtq/recipe-pipeline/internal/worker/domain"
	"github.com/cuongbtq/recipe-pipeline/shared/logger"
)

type testJob struct {
	NoteID   string `json:"noteId"`
	ImportID string `json:"importId"`
	FailWith string `json:"failWith,omitempty"`
	// FailUntil fails every attempt before this one
	FailUntil int `json:"failUntil,omitempty"`
	Visited   []string
}

type testDeps struct {
	steps  *atomic.Int64
	finals *atomic.Int64
}

func testBuilder(job testJob, actx *pipeline.ActionContext, deps testDeps) (pipeline.Pipeline[testJob, testDeps], error) {
	final := pipeline.NewAction("final", func(ctx context.Context, data testJob, deps testDeps, actx *pipeline.ActionContext) (testJob, error) {
		deps.finals.Inc()
		return data, nil
	})

	if job.FailWith == "build" {
		if job.NoteID != "" {
			return pipeline.Pipeline[testJob, testDeps]{Final: final}, pipeline.Validationf("cannot build")
		}
		return pipeline.Pipeline[testJob, testDeps]{}, pipeline.Validationf("cannot build")
	}
	if job.FailWith == "build-transient" {
		return pipeline.Pipeline[testJob, testDeps]{Final: final}, pipeline.Transient(errors.New("lookup failed"))
	}

	step := pipeline.NewAction("step", func(ctx context.Context, data testJob, deps testDeps, actx *pipeline.ActionContext) (testJob, error) {
		deps.steps.Inc()
		if actx.AttemptNumber < data.FailUntil {
			switch data.FailWith {
			case "validation":
				return data, pipeline.Validationf("bad data")
			default:
				return data, pipeline.Transient(errors.New("flaky"))
			}
		}
		data.Visited = append(data.Visited, "step")
		return data, nil
	})

	return pipeline.Pipeline[testJob, testDeps]{
		Steps: []pipeline.Action[testJob, testDeps]{step},
		Final: final,
	}, nil
}

type harness struct {
	queue    *queue.Memory
	worker   *Worker[testJob, testDeps]
	deps     testDeps
	recorder *statustest.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		queue:    queue.NewMemory("test", 16),
		deps:     testDeps{steps: atomic.NewInt64(0), finals: atomic.NewInt64(0)},
		recorder: &statustest.Recorder{},
	}

	w, err := New(Config[testJob, testDeps]{
		ID:          "test-worker",
		Queue:       h.queue,
		Builder:     testBuilder,
		Deps:        h.deps,
		Concurrency: 2,
		Retry:       pipeline.RetryPolicy{MaxRetries: 0},
		Backoff:     pipeline.RetryPolicy{Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		Tracking: func(j testJob) pipeline.Tracking {
			return pipeline.Tracking{NoteID: j.NoteID, ImportID: j.ImportID}
		},
		Broadcaster: h.recorder,
		Logger:      logger.NewDiscard(),
	})
	require.NoError(t, err)
	h.worker = w

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = w.Close(ctx)
		_ = h.queue.Close()
	})
	return h
}

func (h *harness) add(t *testing.T, job any, opts queue.Options) {
	t.Helper()
	_, err := h.queue.Add(context.Background(), "test_job", job, opts)
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config[testJob, testDeps]{Builder: testBuilder})
	assert.Error(t, err)

	_, err = New(Config[testJob, testDeps]{Queue: queue.NewMemory("q", 1)})
	assert.Error(t, err)

	w, err := New(Config[testJob, testDeps]{Queue: queue.NewMemory("q", 1), Builder: testBuilder})
	require.NoError(t, err)
	assert.Equal(t, 1, w.cfg.Concurrency)
	assert.Equal(t, "q", w.Name())
	assert.Contains(t, w.workerID, "q-")
}

func TestWorker_ProcessJob(t *testing.T) {
	tests := []struct {
		name          string
		job           any
		opts          queue.Options
		wantCompleted int
		wantFailed    int
		wantRetries   int
		wantSteps     int64
		wantFinals    int64
		wantFailEvent bool
	}{
		{
			name:          "success acks and runs the completion check",
			job:           testJob{NoteID: "n1", ImportID: "i1"},
			wantCompleted: 1,
			wantSteps:     1,
			wantFinals:    1,
		},
		{
			name:          "transient failure is retried then succeeds",
			job:           testJob{NoteID: "n1", ImportID: "i1", FailWith: "transient", FailUntil: 2},
			wantCompleted: 1,
			wantRetries:   1,
			wantSteps:     2,
			wantFinals:    1,
		},
		{
			name:          "validation failure is rejected without retry",
			job:           testJob{NoteID: "n1", ImportID: "i1", FailWith: "validation", FailUntil: 99},
			wantFailed:    1,
			wantSteps:     1,
			wantFinals:    1,
			wantFailEvent: true,
		},
		{
			name:          "completion is only counted on the last attempt",
			job:           testJob{NoteID: "n1", ImportID: "i1", FailWith: "transient", FailUntil: 99},
			opts:          queue.Options{Attempts: 2},
			wantFailed:    1,
			wantRetries:   1,
			wantSteps:     2,
			wantFinals:    1,
			wantFailEvent: true,
		},
		{
			name:          "build failure is rejected",
			job:           testJob{ImportID: "i1", FailWith: "build"},
			wantFailed:    1,
			wantFailEvent: true,
		},
		{
			name:          "build failure of a note unit still runs the completion check",
			job:           testJob{NoteID: "n1", ImportID: "i1", FailWith: "build"},
			wantFailed:    1,
			wantFinals:    1,
			wantFailEvent: true,
		},
		{
			name:          "build failure is retried without a completion check",
			job:           testJob{NoteID: "n1", ImportID: "i1", FailWith: "build-transient"},
			opts:          queue.Options{Attempts: 2},
			wantFailed:    1,
			wantRetries:   1,
			wantFinals:    1,
			wantFailEvent: true,
		},
		{
			name:       "malformed payload is rejected",
			job:        "not an object",
			wantFailed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.add(t, tt.job, tt.opts)

			require.Eventually(t, func() bool {
				return len(h.queue.Completed())+len(h.queue.Failed()) == 1
			}, 2*time.Second, 5*time.Millisecond)

			assert.Len(t, h.queue.Completed(), tt.wantCompleted)
			assert.Len(t, h.queue.Failed(), tt.wantFailed)
			assert.Equal(t, tt.wantRetries, h.queue.Retries())
			assert.Equal(t, tt.wantSteps, h.deps.steps.Load())
			assert.Equal(t, tt.wantFinals, h.deps.finals.Load())

			if tt.wantFailEvent {
				assert.Equal(t, 1, h.recorder.Count(status.StatusFailed, "test_job"))
			} else {
				assert.Zero(t, h.recorder.Count(status.StatusFailed, ""))
			}
		})
	}
}

func TestWorker_BroadcastFailureDoesNotBlockReject(t *testing.T) {
	h := newHarness(t)
	h.recorder.Err = errors.New("redis down")

	h.add(t, testJob{NoteID: "n1", ImportID: "i1", FailWith: "validation", FailUntil: 99}, queue.Options{})

	require.Eventually(t, func() bool {
		return len(h.queue.Failed()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, h.recorder.Events(), 1)
}

func TestWorker_Lifecycle(t *testing.T) {
	q := queue.NewMemory("lifecycle", 4)
	defer q.Close()

	w, err := New(Config[testJob, testDeps]{
		Queue:   q,
		Builder: testBuilder,
		Deps:    testDeps{steps: atomic.NewInt64(0), finals: atomic.NewInt64(0)},
		Logger:  logger.NewDiscard(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), domain.ErrWorkerStarted)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Close(closeCtx))
	require.NoError(t, w.Close(closeCtx))

	assert.ErrorIs(t, w.Start(ctx), domain.ErrWorkerClosed)
}

func TestWorker_CloseBeforeStart(t *testing.T) {
	w, err := New(Config[testJob, testDeps]{Queue: queue.NewMemory("idle", 1), Builder: testBuilder})
	require.NoError(t, err)
	assert.NoError(t, w.Close(context.Background()))
}
