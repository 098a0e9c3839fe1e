package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

func item(id string) scraper.QueueItem {
	return scraper.QueueItem{Job: scraper.Job{ID: id}, Attempt: 1}
}

func TestQueueDeliversInOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	ctx := context.Background()
	for _, id := range []string{"job-1", "job-2"} {
		if err := q.Enqueue(ctx, item(id)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	for _, want := range []string{"job-1", "job-2"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if got.Job.ID != want {
			t.Fatalf("Dequeue() = %s, want %s", got.Job.ID, want)
		}
	}
}

func TestQueueBlockedDequeueReceivesLaterEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan scraper.QueueItem, 1)
	go func() {
		got, err := q.Dequeue(context.Background())
		if err == nil {
			result <- got
		}
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(context.Background(), item("late")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case got := <-result:
		if got.Job.ID != "late" {
			t.Fatalf("expected late, got %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueHonoursContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled dequeue, got %v", err)
	}

	if err := q.Enqueue(context.Background(), item("primed")); err != nil {
		t.Fatalf("prime queue: %v", err)
	}
	if err := q.Enqueue(ctx, item("overflow")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled enqueue on full queue, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.Enqueue(context.Background(), item("pending")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	q.Close()

	if err := q.Enqueue(context.Background(), item("rejected")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if got, err := q.Dequeue(context.Background()); err != nil || got.Job.ID != "pending" {
		t.Fatalf("pending item lost: %+v, %v", got, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}
