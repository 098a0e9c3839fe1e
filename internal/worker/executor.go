// Package worker runs scrape jobs: dedup, browser session, extraction with
// retry, persistence and notification, with task-level retry on top.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/browser"
	"github.com/JakeFAU/product-scraper/internal/database"
	"github.com/JakeFAU/product-scraper/internal/extract"
	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// EnvironmentProduction enables completion notifications.
const EnvironmentProduction = "production"

var tracer = otel.Tracer("github.com/JakeFAU/product-scraper/internal/worker")

// Sessions scopes a browser session to fn.
type Sessions interface {
	WithSession(ctx context.Context, s site.Site, fn func(context.Context, *browser.Handle) error) error
}

// HealthChecker probes a live session.
type HealthChecker interface {
	IsAlive(ctx context.Context, h *browser.Handle) bool
}

// Gate reports prior completion of a URL.
type Gate interface {
	AlreadyDone(ctx context.Context, q database.Querier, s site.Site, url string) (bool, error)
}

// Persister writes a scraped record and its catalog row in one transaction.
type Persister interface {
	Persist(ctx context.Context, q database.Querier, s site.Site, url string, rec product.Record, catalog product.Catalog) error
}

// Extractors resolves the extractor for a site.
type Extractors interface {
	For(s site.Site) (extract.Extractor, bool)
}

// Limiter paces requests per site.
type Limiter interface {
	Wait(ctx context.Context, s site.Site) error
}

// Config controls retry and timeout behaviour.
type Config struct {
	Environment string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries   int
	RetryBackoff scraper.Backoff
	// ExtractAttempts bounds extraction tries within one session.
	ExtractAttempts int
	ExtractDelay    time.Duration
	HardTimeout     time.Duration
	SoftTimeout     time.Duration
}

// Deps groups the collaborators of an Executor.
type Deps struct {
	DB         database.Provider
	Gate       Gate
	Sessions   Sessions
	Health     HealthChecker
	Extractors Extractors
	Persister  Persister
	Limiter    Limiter
	Notifier   scraper.Notifier
	DeadLetter scraper.DeadLetterSink
	Clock      scraper.Clock
}

// Executor runs one job to a terminal outcome.
type Executor struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewExecutor validates deps and applies defaults to cfg.
func NewExecutor(deps Deps, cfg Config, logger *zap.Logger) (*Executor, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("worker: database provider is required")
	case deps.Gate == nil:
		return nil, errors.New("worker: dedup gate is required")
	case deps.Sessions == nil || deps.Health == nil:
		return nil, errors.New("worker: browser sessions and health checker are required")
	case deps.Extractors == nil:
		return nil, errors.New("worker: extractors are required")
	case deps.Persister == nil:
		return nil, errors.New("worker: persister is required")
	case deps.Clock == nil:
		return nil, errors.New("worker: clock is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff.Base <= 0 {
		cfg.RetryBackoff.Base = 2 * time.Second
	}
	if cfg.RetryBackoff.Max <= 0 {
		cfg.RetryBackoff.Max = time.Minute
	}
	if cfg.ExtractAttempts <= 0 {
		cfg.ExtractAttempts = 2
	}
	if cfg.ExtractDelay < 0 {
		cfg.ExtractDelay = 0
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("executor"),
		sleep:  scraper.Sleep,
	}, nil
}

// Handle runs item until it persists, ends empty or deduped, fails
// permanently or exhausts its retries. It returns OutcomeRetrying only when
// ctx ended before the job settled, along with the item as of the last
// attempt that counted.
func (e *Executor) Handle(ctx context.Context, item scraper.QueueItem) (scraper.Outcome, scraper.QueueItem) {
	if item.Attempt < 1 {
		item.Attempt = 1
	}
	job := item.Job
	log := e.logger.With(zap.String("job_id", job.ID), zap.String("site", job.Site.String()), zap.String("url", job.URL))

	for {
		start := e.deps.Clock.Now()
		outcome, err := e.Attempt(ctx, job)
		elapsed := e.deps.Clock.Now().Sub(start)
		if err == nil {
			metrics.ObserveJob(job.Site.String(), string(outcome), elapsed)
			log.Info("job finished", zap.String("outcome", string(outcome)), zap.Int("attempt", item.Attempt), zap.Duration("elapsed", elapsed))
			return outcome, item
		}

		// Another worker won the insert race; the row exists.
		if errors.Is(err, scraper.ErrDuplicate) {
			metrics.ObserveJob(job.Site.String(), string(scraper.OutcomeDeduped), elapsed)
			log.Info("job finished", zap.String("outcome", string(scraper.OutcomeDeduped)), zap.Int("attempt", item.Attempt), zap.Error(err))
			return scraper.OutcomeDeduped, item
		}
		if scraper.IsPermanent(err) {
			metrics.ObserveJob(job.Site.String(), string(scraper.OutcomeFailed), elapsed)
			log.Error("job failed permanently", zap.Int("attempt", item.Attempt), zap.Error(err))
			e.deadLetter(ctx, item, err)
			return scraper.OutcomeFailed, item
		}
		// Shutdown cut the attempt short, so it does not count.
		if ctx.Err() != nil {
			metrics.ObserveJob(job.Site.String(), string(scraper.OutcomeRetrying), elapsed)
			log.Warn("attempt interrupted", zap.Int("attempt", item.Attempt), zap.Error(err))
			item.Attempt--
			return scraper.OutcomeRetrying, item
		}
		if item.Attempt >= e.cfg.MaxRetries+1 {
			metrics.ObserveJob(job.Site.String(), string(scraper.OutcomeDead), elapsed)
			log.Error("job retries exhausted", zap.Int("attempt", item.Attempt), zap.Error(err))
			e.deadLetter(ctx, item, err)
			return scraper.OutcomeDead, item
		}

		delay := e.cfg.RetryBackoff.Delay(item.Attempt)
		metrics.ObserveJob(job.Site.String(), string(scraper.OutcomeRetrying), elapsed)
		log.Warn("job attempt failed, retrying",
			zap.Int("attempt", item.Attempt),
			zap.String("kind", scraper.KindOf(err).String()),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			log.Warn("retry interrupted", zap.Int("attempt", item.Attempt), zap.Error(err))
			return scraper.OutcomeRetrying, item
		}
		item.Attempt++
	}
}

// Attempt executes one pass of the job pipeline under the hard timeout.
func (e *Executor) Attempt(ctx context.Context, job scraper.Job) (outcome scraper.Outcome, err error) {
	ctx, span := tracer.Start(ctx, "scrape.attempt", trace.WithAttributes(
		attribute.String("scraper.job_id", job.ID),
		attribute.String("scraper.site", job.Site.String()),
		attribute.String("url.full", job.URL),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, scraper.KindOf(err).String())
		} else {
			span.SetAttributes(attribute.String("scraper.outcome", string(outcome)))
		}
		span.End()
	}()

	if err := job.Validate(); err != nil {
		return "", err
	}
	extractor, ok := e.deps.Extractors.For(job.Site)
	if !ok {
		return "", scraper.Permanentf("dispatch", "no extractor for site %q", job.Site)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.HardTimeout)
	defer cancel()
	if e.cfg.SoftTimeout > 0 {
		soft := time.AfterFunc(e.cfg.SoftTimeout, func() {
			metrics.ObserveSoftTimeout(job.Site.String())
			e.logger.Warn("job attempt exceeded soft timeout",
				zap.String("job_id", job.ID),
				zap.Duration("soft_timeout", e.cfg.SoftTimeout),
			)
		})
		defer soft.Stop()
	}

	err = e.deps.DB.WithSession(ctx, func(ctx context.Context, q database.Querier) error {
		done, err := e.deps.Gate.AlreadyDone(ctx, q, job.Site, job.URL)
		if err != nil {
			return err
		}
		if done {
			outcome = scraper.OutcomeDeduped
			return nil
		}

		rec, err := e.scrape(ctx, job, extractor)
		if err != nil {
			return err
		}
		if rec == nil {
			e.logger.Warn("no product data extracted", zap.String("job_id", job.ID), zap.String("url", job.URL))
			outcome = scraper.OutcomeEmpty
			return nil
		}

		if err := e.deps.Persister.Persist(ctx, q, job.Site, job.URL, rec, job.Catalog); err != nil {
			return err
		}
		outcome = scraper.OutcomePersisted
		e.notify(ctx, job, rec)
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// scrape runs extraction inside a browser session that is released before
// the caller persists anything.
func (e *Executor) scrape(ctx context.Context, job scraper.Job, extractor extract.Extractor) (product.Record, error) {
	if e.deps.Limiter != nil {
		if err := e.deps.Limiter.Wait(ctx, job.Site); err != nil {
			return nil, scraper.NewError(scraper.KindTimeout, "rate limit wait", err)
		}
	}
	var rec product.Record
	err := e.deps.Sessions.WithSession(ctx, job.Site, func(ctx context.Context, h *browser.Handle) error {
		var err error
		rec, err = e.extractWithRetry(ctx, h, extractor, job)
		return err
	})
	return rec, err
}

func (e *Executor) extractWithRetry(
	ctx context.Context,
	h *browser.Handle,
	extractor extract.Extractor,
	job scraper.Job,
) (product.Record, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.ExtractAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.cfg.ExtractDelay); err != nil {
				return nil, scraper.NewError(scraper.KindTimeout, "extract delay", err)
			}
		}
		if !e.deps.Health.IsAlive(ctx, h) {
			cause := errors.New("session failed health check")
			if lastErr != nil {
				cause = fmt.Errorf("%w (previous: %v)", cause, lastErr)
			}
			return nil, scraper.NewError(scraper.KindSessionTerminated, "extract", cause)
		}

		rec, err := extractor.Extract(ctx, h, job.URL)
		if err == nil {
			metrics.ObserveExtractAttempt(job.Site.String(), "ok")
			return rec, nil
		}
		metrics.ObserveExtractAttempt(job.Site.String(), "error")
		if !scraper.IsPageTransient(err) {
			return nil, err
		}
		lastErr = err
		e.logger.Warn("extraction attempt failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.cfg.ExtractAttempts),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (e *Executor) notify(ctx context.Context, job scraper.Job, rec product.Record) {
	if e.deps.Notifier == nil || e.cfg.Environment != EnvironmentProduction {
		return
	}
	if err := e.deps.Notifier.Notify(ctx, scraper.NewNotification(job, rec)); err != nil {
		metrics.ObserveWebhookFailure()
		e.logger.Warn("completion notification failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (e *Executor) deadLetter(ctx context.Context, item scraper.QueueItem, cause error) {
	if e.deps.DeadLetter == nil {
		return
	}
	letter := scraper.DeadLetter{
		Item:     item,
		Error:    cause.Error(),
		Kind:     scraper.KindOf(cause).String(),
		FailedAt: e.deps.Clock.Now(),
	}
	if err := e.deps.DeadLetter.DeadLetter(context.WithoutCancel(ctx), letter); err != nil {
		e.logger.Error("dead-letter write failed", zap.String("job_id", item.Job.ID), zap.Error(err))
	}
}
