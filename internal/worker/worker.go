package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/scraper"
)

const requeueTimeout = 5 * time.Second

// dequeueBackoff paces the loop while the broker keeps failing.
var dequeueBackoff = scraper.Backoff{Base: 50 * time.Millisecond, Max: 5 * time.Second}

// Handler runs a single queue item to completion. It returns the outcome
// together with the item as it stood after the last attempt that counted
// against its retry budget.
type Handler interface {
	Handle(ctx context.Context, item scraper.QueueItem) (scraper.Outcome, scraper.QueueItem)
}

// Worker consumes queue items one at a time.
type Worker struct {
	id      int
	queue   scraper.Queue
	handler Handler
	logger  *zap.Logger
}

// New constructs a Worker.
func New(id int, queue scraper.Queue, handler Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		handler: handler,
		logger:  logger.Named("worker").With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	failures := 0
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			delay := dequeueBackoff.Delay(failures)
			w.logger.Error("queue dequeue failed", zap.Int("consecutive_failures", failures), zap.Duration("backoff", delay), zap.Error(err))
			if scraper.Sleep(ctx, delay) != nil {
				return
			}
			continue
		}
		failures = 0
		w.logger.Debug("dequeued job", zap.String("job_id", item.Job.ID), zap.Int("attempt", item.Attempt))

		if outcome, last := w.handler.Handle(ctx, item); outcome == scraper.OutcomeRetrying {
			w.requeue(ctx, last)
		}
	}
}

// requeue hands an interrupted job back to the queue so another process
// can pick it up after shutdown. item carries the last attempt consumed.
func (w *Worker) requeue(ctx context.Context, item scraper.QueueItem) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
	defer cancel()
	item.Attempt++
	if err := w.queue.Enqueue(rctx, item); err != nil {
		w.logger.Error("requeue failed, job dropped", zap.String("job_id", item.Job.ID), zap.Error(err))
		return
	}
	w.logger.Info("job requeued", zap.String("job_id", item.Job.ID), zap.Int("attempt", item.Attempt))
}
