package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

func validJob() scraper.Job {
	return scraper.Job{
		ID:      "job-1",
		URL:     "https://www.farfetch.com/shopping/women/coat-item-123.aspx",
		Site:    site.Farfetch,
		Catalog: product.Catalog{ID: "prod_1"},
	}
}

// TestDispatcherRunStartsWorkers ensures every worker begins dequeuing and
// that Run returns once they stop.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 3)}
	dispatch := New(queue, noopHandler{}, 3, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-queue.started:
		case <-time.After(time.Second):
			t.Fatalf("worker %d did not begin dequeuing", i)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestDispatcherSubmitStampsFirstAttempt(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	dispatch := New(queue, nil, 1, fixedClock{}, nil)

	require.NoError(t, dispatch.Submit(context.Background(), validJob()))
	require.Len(t, queue.items, 1)
	assert.Equal(t, 1, queue.items[0].Attempt)
	assert.Equal(t, int64(1_700_000_000), queue.items[0].Submitted)
	assert.Equal(t, "job-1", queue.items[0].Job.ID)
}

func TestDispatcherSubmitRejectsInvalidJobs(t *testing.T) {
	t.Parallel()

	queue := &recordingQueue{}
	dispatch := New(queue, nil, 1, nil, nil)

	job := validJob()
	job.Site = site.Site("ebay")
	err := dispatch.Submit(context.Background(), job)
	require.Error(t, err)
	assert.True(t, scraper.IsPermanent(err))
	assert.Empty(t, queue.items)
}

// TestDispatcherSubmitForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherSubmitForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil, 1, nil, nil)

	err := dispatch.Submit(context.Background(), validJob())
	if err == nil || err.Error() != "queue enqueue: boom" {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

// --- fakes ---

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1_700_000_000, 0) }

type noopHandler struct{}

func (noopHandler) Handle(_ context.Context, item scraper.QueueItem) (scraper.Outcome, scraper.QueueItem) {
	return scraper.OutcomePersisted, item
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, scraper.QueueItem) error { return nil }

func (q *blockingQueue) Dequeue(ctx context.Context) (scraper.QueueItem, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return scraper.QueueItem{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type recordingQueue struct {
	mu    sync.Mutex
	items []scraper.QueueItem
}

func (q *recordingQueue) Enqueue(_ context.Context, item scraper.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *recordingQueue) Dequeue(ctx context.Context) (scraper.QueueItem, error) {
	<-ctx.Done()
	return scraper.QueueItem{}, ctx.Err()
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, scraper.QueueItem) error { return q.err }

func (q *errorQueue) Dequeue(context.Context) (scraper.QueueItem, error) {
	return scraper.QueueItem{}, nil
}
