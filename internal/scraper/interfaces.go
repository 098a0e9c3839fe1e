package scraper

import (
	"context"
	"time"
)

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// DeadLetterSink receives jobs that will not be attempted again.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, letter DeadLetter) error
}

// Notifier delivers completion notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
