// Package dispatcher admits jobs onto the queue and fans queue work out to
// a fixed pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/worker"
)

// Dispatcher owns the worker pool for one process.
type Dispatcher struct {
	queue   scraper.Queue
	clock   scraper.Clock
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher with concurrency workers sharing handler.
func New(
	queue scraper.Queue,
	handler worker.Handler,
	concurrency int,
	clock scraper.Clock,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	workers := make([]*worker.Worker, 0, concurrency)
	if handler != nil {
		for i := 0; i < concurrency; i++ {
			workers = append(workers, worker.New(i, queue, handler, logger))
		}
	}
	return &Dispatcher{
		queue:   queue,
		clock:   clock,
		workers: workers,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting workers", zap.Int("count", len(d.workers)))
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
	d.logger.Info("workers stopped")
}

// Submit validates job and enqueues it as a first attempt. Invalid jobs are
// rejected with a permanent error and never reach the queue.
func (d *Dispatcher) Submit(ctx context.Context, job scraper.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	item := scraper.QueueItem{Job: job, Attempt: 1}
	if d.clock != nil {
		item.Submitted = d.clock.Now().Unix()
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Debug("job submitted", zap.String("job_id", job.ID), zap.String("site", job.Site.String()))
	return nil
}
