// Package worker executes queued source runs.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/lockmap"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
)

// Runner executes one run; the orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, runID, sourceID string) (crawler.RunSummary, error)
}

// Worker consumes queue items and runs them. Workers sharing a lock map never
// run the same source concurrently.
type Worker struct {
	id     int
	queue  crawler.Queue
	runner Runner
	locks  *lockmap.Map
	logger *zap.Logger
}

// New constructs a Worker. A nil locks map disables per-source exclusion.
func New(id int, queue crawler.Queue, runner Runner, locks *lockmap.Map, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     id,
		queue:  queue,
		runner: runner,
		locks:  locks,
		logger: logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run consumes queue items until ctx is done or the queue is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Info("queue drained", zap.Error(err))
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item crawler.QueueItem) {
	if w.locks != nil {
		unlock := w.locks.Lock(item.SourceID)
		defer unlock()
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("run_id", item.RunID), zap.String("source_id", item.SourceID))
	logger.Debug("run dequeued")
	summary, err := w.runner.Run(ctx, item.RunID, item.SourceID)
	switch {
	case err == nil:
		logger.Info("run complete",
			zap.Int("processed", summary.Processed),
			zap.Int("relevant", summary.Relevant),
			zap.Int64("duration_ms", summary.DurationMs),
		)
	case errors.Is(err, context.Canceled):
		logger.Warn("run canceled", zap.Error(err))
	default:
		logger.Error("run failed", zap.Error(err))
	}
}
