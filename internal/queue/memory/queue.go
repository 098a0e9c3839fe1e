// Package memory is the in-process job queue used when no broker is
// configured. Jobs do not survive a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded channel of queue items.
type Queue struct {
	ch      chan scraper.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a queue holding at most capacity pending items.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan scraper.QueueItem, capacity)}
}

// Enqueue blocks until there is room or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, item scraper.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue job %s: %w", item.Job.ID, ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue waits for the next item or until ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (scraper.QueueItem, error) {
	select {
	case <-ctx.Done():
		return scraper.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return scraper.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items. Pending items can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
