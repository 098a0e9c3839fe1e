package scraper

import (
	"time"

	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Outcome is the terminal state a job attempt reached.
type Outcome string

// Job outcomes.
const (
	OutcomeDeduped   Outcome = "deduped"
	OutcomeEmpty     Outcome = "empty"
	OutcomePersisted Outcome = "persisted"
	OutcomeRetrying  Outcome = "retrying"
	OutcomeFailed    Outcome = "failed"
	OutcomeDead      Outcome = "dead_letter"
)

// Job is one unit of scrape work.
type Job struct {
	ID      string          `json:"job_id"`
	URL     string          `json:"url"`
	Site    site.Site       `json:"site"`
	Catalog product.Catalog `json:"catalog_payload"`
}

// QueueItem wraps a job with delivery metadata.
type QueueItem struct {
	Job       Job   `json:"job"`
	Attempt   int   `json:"attempt"`
	Submitted int64 `json:"submitted"`
}

// Validate rejects jobs that can never succeed.
func (j Job) Validate() error {
	if j.URL == "" {
		return Permanentf("validate job", "url is required")
	}
	if !j.Site.Valid() {
		return Permanentf("validate job", "unsupported site %q", j.Site)
	}
	if j.Catalog.ID == "" {
		return Permanentf("validate job", "catalog payload id is required")
	}
	return nil
}

// DeadLetter is the record written when a job is abandoned.
type DeadLetter struct {
	Item     QueueItem `json:"item"`
	Error    string    `json:"error"`
	Kind     string    `json:"kind"`
	FailedAt time.Time `json:"failed_at"`
}

// Notification is the payload delivered after a job persists data.
type Notification struct {
	URL  string         `json:"url"`
	Data map[string]any `json:"data"`
}

// NewNotification composes the site-keyed record with the catalog payload.
func NewNotification(job Job, rec product.Record) Notification {
	return Notification{
		URL: job.URL,
		Data: map[string]any{
			string(job.Site): rec,
			"catalog":        job.Catalog,
		},
	}
}
