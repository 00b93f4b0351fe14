package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/recipe-pipeline/internal/queue"
)

// startMessageDispatcher forwards deliveries to the worker pool until ctx
// is canceled or the queue stops delivering; it then closes jobsChan
func (w *Worker[D, X]) startMessageDispatcher(ctx context.Context, messages <-chan queue.Message) {
	defer close(w.jobsChan)

	w.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case msg, ok := <-messages:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.Envelope().ID),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// hand the job back so it can be reprocessed
				settleCtx, cancel := settleContext(ctx)
				if err := msg.Requeue(settleCtx); err != nil {
					w.logger.Error("Failed to requeue message on shutdown",
						slog.String("job_id", msg.Envelope().ID),
						slog.Any("error", err),
					)
				}
				cancel()
				return
			}
		}
	}
}

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
