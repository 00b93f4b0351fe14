package worker

import (
	"context"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker[D, X]) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.cfg.Concurrency),
	)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop processes jobs one at a time until jobsChan is closed
func (w *Worker[D, X]) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Debug("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for msg := range w.jobsChan {
		w.processJob(ctx, workerName, msg)
	}

	w.logger.Debug("Worker goroutine stopping - jobsChan closed",
		slog.String("worker_name", workerName),
	)
}
