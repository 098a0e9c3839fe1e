// Package deadletter archives abandoned jobs as JSON blobs.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// BlobSink writes each dead letter to its own object.
type BlobSink struct {
	store  scraper.BlobStore
	logger *zap.Logger
}

// NewBlobSink wraps store.
func NewBlobSink(store scraper.BlobStore, logger *zap.Logger) *BlobSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobSink{store: store, logger: logger.Named("dead_letter")}
}

// DeadLetter implements scraper.DeadLetterSink.
func (s *BlobSink) DeadLetter(ctx context.Context, letter scraper.DeadLetter) error {
	payload, err := json.MarshalIndent(letter, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	uri, err := s.store.PutObject(ctx, ObjectPath(letter), "application/json", payload)
	if err != nil {
		return fmt.Errorf("store dead letter for job %s: %w", letter.Item.Job.ID, err)
	}
	s.logger.Info("job dead-lettered",
		zap.String("job_id", letter.Item.Job.ID),
		zap.String("kind", letter.Kind),
		zap.String("uri", uri),
	)
	return nil
}

// ObjectPath partitions letters by day and site:
// 2006/01/02/<site>/<job_id>-<attempt>.json.
func ObjectPath(letter scraper.DeadLetter) string {
	site := letter.Item.Job.Site.String()
	if site == "" {
		site = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s-%d.json",
		letter.FailedAt.UTC().Format("2006/01/02"),
		site,
		letter.Item.Job.ID,
		letter.Item.Attempt,
	)
}
