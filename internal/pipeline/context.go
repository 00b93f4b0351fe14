package pipeline

import (
	"log/slog"
	"time"
)

// ActionContext describes one execution of one job. The worker creates it when
// the job is dequeued and drops it when the job finishes.
type ActionContext struct {
	JobID         string
	QueueName     string
	WorkerName    string
	Operation     string
	AttemptNumber int
	RetryCount    int
	StartTime     time.Time
}

// Elapsed is the time spent on the job so far
func (c *ActionContext) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// LogAttrs renders the context as log attributes
func (c *ActionContext) LogAttrs() []any {
	return []any{
		slog.String("job_id", c.JobID),
		slog.String("queue", c.QueueName),
		slog.String("worker_name", c.WorkerName),
		slog.String("operation", c.Operation),
		slog.Int("attempt", c.AttemptNumber),
	}
}
