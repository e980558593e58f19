// Package dispatcher accepts run requests and fans queued runs out to the
// worker pool.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/worker"
)

// Queue is a run queue that can refuse work instead of blocking.
type Queue interface {
	crawler.Queue
	TryEnqueue(item crawler.QueueItem) error
}

// Dispatcher owns the worker pool and the submission path.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
	sources crawler.SourceStore
	runs    crawler.RunStore
	ids     crawler.IDGenerator
	clock   crawler.Clock
}

// New creates a Dispatcher.
func New(queue Queue, workers []*worker.Worker, sources crawler.SourceStore, runs crawler.RunStore, ids crawler.IDGenerator, clock crawler.Clock) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		sources: sources,
		runs:    runs,
		ids:     ids,
		clock:   clock,
	}
}

// Run starts all workers and blocks until ctx is done and they have exited.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit validates sourceID, records a queued run and enqueues it. It fails
// with crawler.ErrSourceInactive for disabled sources and with the queue's
// error when the queue is full; such a run is recorded as failed.
func (d *Dispatcher) Submit(ctx context.Context, sourceID string) (crawler.RunSummary, error) {
	src, err := d.sources.GetSource(ctx, sourceID)
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("submit run: %w", err)
	}
	if !src.Active {
		return crawler.RunSummary{}, fmt.Errorf("submit run for %s: %w", sourceID, crawler.ErrSourceInactive)
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	now := d.clock.Now()
	summary := crawler.RunSummary{RunID: runID, SourceID: sourceID, Status: crawler.RunStatusQueued, StartedAt: now}
	if err := d.runs.SaveRun(ctx, summary); err != nil {
		return crawler.RunSummary{}, fmt.Errorf("save queued run: %w", err)
	}
	if err := d.queue.TryEnqueue(crawler.QueueItem{RunID: runID, SourceID: sourceID, Submitted: now.UnixNano()}); err != nil {
		summary.Status = crawler.RunStatusFailed
		summary.ErrorText = err.Error()
		summary.FinishedAt = &now
		if saveErr := d.runs.SaveRun(ctx, summary); saveErr != nil {
			return summary, fmt.Errorf("enqueue run: %w (and save failed: %v)", err, saveErr)
		}
		return summary, fmt.Errorf("enqueue run: %w", err)
	}
	return summary, nil
}
