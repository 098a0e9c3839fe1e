// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the serve command.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/product-scraper/internal/api"
	"github.com/JakeFAU/product-scraper/internal/browser"
	"github.com/JakeFAU/product-scraper/internal/browser/chromium"
	"github.com/JakeFAU/product-scraper/internal/browser/playwright"
	"github.com/JakeFAU/product-scraper/internal/clock/system"
	"github.com/JakeFAU/product-scraper/internal/config"
	"github.com/JakeFAU/product-scraper/internal/database"
	"github.com/JakeFAU/product-scraper/internal/deadletter"
	"github.com/JakeFAU/product-scraper/internal/dedup"
	"github.com/JakeFAU/product-scraper/internal/dispatcher"
	"github.com/JakeFAU/product-scraper/internal/extract"
	"github.com/JakeFAU/product-scraper/internal/id/uuid"
	"github.com/JakeFAU/product-scraper/internal/listing"
	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/notify"
	notifypubsub "github.com/JakeFAU/product-scraper/internal/notify/pubsub"
	"github.com/JakeFAU/product-scraper/internal/persist"
	queueMemory "github.com/JakeFAU/product-scraper/internal/queue/memory"
	queueRedis "github.com/JakeFAU/product-scraper/internal/queue/redis"
	"github.com/JakeFAU/product-scraper/internal/ratelimit"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
	"github.com/JakeFAU/product-scraper/internal/storage/gcs"
	"github.com/JakeFAU/product-scraper/internal/storage/local"
	"github.com/JakeFAU/product-scraper/internal/telemetry"
	"github.com/JakeFAU/product-scraper/internal/worker"
)

// App holds the shared, long-lived services for one serve process.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	db         *database.Pool
	queue      scraper.Queue
	dispatcher *dispatcher.Dispatcher
	server     *api.Server

	// closers run in reverse registration order.
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New builds every service named in cfg. It fails fast, releasing whatever
// was already opened, if any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	ready := false
	defer func() {
		if !ready {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("cleanup after failed init", zap.Error(cerr))
			}
		}
	}()

	logger.Info("initializing application services", zap.String("environment", cfg.Environment))
	metrics.Init()
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracer provider", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	})

	a.db, err = database.NewPool(ctx, DatabaseConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.onClose("database", func() error { a.db.Close(); return nil })

	redisQueue, err := a.buildQueue(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.buildDeadLetterSink(ctx, redisQueue)
	if err != nil {
		return nil, err
	}
	notifier, err := a.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}
	launcher := a.buildLauncher()

	clock := system.New()
	sessions := browser.NewManager(
		launcher,
		browser.NewMonitor(cfg.Browser.ProbeTimeout, logger.Named("monitor")),
		browser.ManagerConfig{
			CreateAttempts:  cfg.Browser.CreateAttempts,
			CreateBackoff:   scraper.Backoff{Base: cfg.Browser.CreateBackoff, Max: 10 * cfg.Browser.CreateBackoff},
			ShutdownTimeout: cfg.Browser.ShutdownTimeout,
		},
		clock,
		logger.Named("sessions"),
	)

	executor, err := worker.NewExecutor(worker.Deps{
		DB:         a.db,
		Gate:       dedup.NewGate(dedup.Config{CacheSize: cfg.Dedup.CacheSize, CacheTTL: cfg.Dedup.CacheTTL}, logger),
		Sessions:   sessions,
		Health:     browser.NewMonitor(cfg.Browser.ProbeTimeout, logger.Named("health")),
		Extractors: extract.NewRegistry(logger.Named("extract")),
		Persister:  persist.NewCoordinator(logger),
		Limiter:    ratelimit.New(RateLimitConfig(cfg)),
		Notifier:   notifier,
		DeadLetter: sink,
		Clock:      clock,
	}, WorkerConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("init executor: %w", err)
	}

	a.dispatcher = dispatcher.New(a.queue, executor, cfg.Worker.Concurrency, clock, logger)
	a.server = api.NewServer(api.Deps{
		Submitter: a.dispatcher,
		Listings:  listing.New(ListingConfig(cfg), logger),
		DB:        a.db,
		IDs:       uuid.New(),
	}, cfg, logger)

	logger.Info("application services initialized")
	ready = true
	return a, nil
}

// buildQueue returns the redis queue when that backend is selected so it
// can double as the dead-letter sink.
func (a *App) buildQueue(ctx context.Context) (*queueRedis.Queue, error) {
	switch a.cfg.Queue.Backend {
	case "redis":
		client, err := queueRedis.NewClient(ctx, a.cfg.Queue.RedisAddr, a.cfg.Queue.RedisPassword, a.cfg.Queue.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init queue: %w", err)
		}
		q := queueRedis.New(client, queueRedis.Config{
			Key:           a.cfg.Queue.Key,
			DeadLetterKey: a.cfg.Queue.DeadLetterKey,
			PopTimeout:    a.cfg.Queue.PopTimeout,
		}, a.logger)
		a.queue = q
		a.onClose("redis queue", q.Close)
		a.logger.Info("using redis queue", zap.String("addr", a.cfg.Queue.RedisAddr), zap.String("key", a.cfg.Queue.Key))
		return q, nil
	default:
		q := queueMemory.NewQueue(a.cfg.Queue.Capacity)
		a.queue = q
		a.onClose("memory queue", func() error { q.Close(); return nil })
		a.logger.Info("using in-memory queue", zap.Int("capacity", a.cfg.Queue.Capacity))
		return nil, nil
	}
}

func (a *App) buildDeadLetterSink(ctx context.Context, redisQueue *queueRedis.Queue) (scraper.DeadLetterSink, error) {
	switch a.cfg.DeadLetter.Backend {
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.DeadLetter.Dir})
		if err != nil {
			return nil, fmt.Errorf("init dead-letter store: %w", err)
		}
		a.logger.Info("dead letters archived locally", zap.String("dir", a.cfg.DeadLetter.Dir))
		return deadletter.NewBlobSink(store, a.logger), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.onClose("gcs client", client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.DeadLetter.GCSBucket, Prefix: a.cfg.DeadLetter.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init dead-letter store: %w", err)
		}
		a.logger.Info("dead letters archived to gcs", zap.String("bucket", a.cfg.DeadLetter.GCSBucket))
		return deadletter.NewBlobSink(store, a.logger), nil
	case "redis":
		if redisQueue == nil {
			return nil, errors.New("dead_letter.backend redis requires the redis queue")
		}
		a.logger.Info("dead letters pushed to redis", zap.String("key", a.cfg.Queue.DeadLetterKey))
		return redisQueue, nil
	default:
		a.logger.Warn("dead letters are discarded")
		return nil, nil
	}
}

// buildNotifier returns nil when no channel is configured. Delivery is
// further gated on the production environment inside the executor.
func (a *App) buildNotifier(ctx context.Context) (scraper.Notifier, error) {
	var targets notify.Multi
	if a.cfg.Webhook.URL != "" {
		hook, err := notify.NewWebhook(notify.WebhookConfig{
			URL:     a.cfg.Webhook.URL,
			Timeout: a.cfg.Webhook.Timeout,
			Headers: a.cfg.Webhook.Headers,
		}, nil, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init webhook: %w", err)
		}
		targets = append(targets, hook)
	}
	if a.cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		publisher := client.Publisher(a.cfg.PubSub.TopicName)
		a.onClose("pubsub client", func() error {
			publisher.Stop()
			return client.Close()
		})
		targets = append(targets, notifypubsub.New(publisher))
		a.logger.Info("publishing completion events", zap.String("topic", a.cfg.PubSub.TopicName))
	}
	switch len(targets) {
	case 0:
		return nil, nil
	case 1:
		return targets[0], nil
	default:
		return targets, nil
	}
}

func (a *App) buildLauncher() browser.Launcher {
	b := a.cfg.Browser
	if b.Driver == "playwright" {
		l := playwright.NewLauncher(playwright.Config{
			Headless:          b.Headless,
			ExecPath:          b.ExecPath,
			ProxyServer:       b.ProxyServer,
			UserAgents:        b.UserAgents,
			WindowWidth:       b.WindowWidth,
			WindowHeight:      b.WindowHeight,
			NavigationTimeout: b.NavigationTimeout,
		}, a.logger.Named("playwright"))
		a.onClose("playwright", l.Close)
		return l
	}
	l := chromium.NewLauncher(chromium.Config{
		Headless:          b.Headless,
		ExecPath:          b.ExecPath,
		NoSandbox:         b.NoSandbox,
		ProxyServer:       b.ProxyServer,
		UserAgents:        b.UserAgents,
		WindowWidth:       b.WindowWidth,
		WindowHeight:      b.WindowHeight,
		StartTimeout:      b.StartTimeout,
		NavigationTimeout: b.NavigationTimeout,
	}, a.logger.Named("chromium"))
	a.onClose("chromium", func() error { l.Close(); return nil })
	return l
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run serves HTTP and drives the worker pool until ctx ends or either
// fails, then drains the server within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.dispatcher.Run(ctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// Close shuts down services in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// DatabaseConfig maps the db section onto the pool config.
func DatabaseConfig(cfg config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	}
}

// ListingConfig maps the listing section onto the discoverer config.
func ListingConfig(cfg config.Config) listing.Config {
	return listing.Config{
		UserAgent:  cfg.Listing.UserAgent,
		Timeout:    cfg.Listing.Timeout,
		MaxResults: cfg.Listing.MaxResults,
	}
}

// WorkerConfig maps the worker section onto the executor config.
func WorkerConfig(cfg config.Config) worker.Config {
	return worker.Config{
		Environment:     cfg.Environment,
		MaxRetries:      cfg.Worker.MaxRetries,
		RetryBackoff:    scraper.Backoff{Base: cfg.Worker.RetryBase, Max: cfg.Worker.RetryMax},
		ExtractAttempts: cfg.Worker.ExtractAttempts,
		ExtractDelay:    cfg.Worker.ExtractDelay,
		HardTimeout:     cfg.Worker.HardTimeout,
		SoftTimeout:     cfg.Worker.SoftTimeout,
	}
}

// RateLimitConfig maps the ratelimit section. Site keys were checked by
// config.Validate; unknown ones are skipped here.
func RateLimitConfig(cfg config.Config) ratelimit.Config {
	out := ratelimit.Config{
		Default: ratelimit.Rule{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
		Sites:   make(map[site.Site]ratelimit.Rule, len(cfg.RateLimit.Sites)),
	}
	for name, rule := range cfg.RateLimit.Sites {
		s, err := site.Parse(name)
		if err != nil {
			continue
		}
		out.Sites[s] = ratelimit.Rule{RPS: rule.RPS, Burst: rule.Burst}
	}
	return out
}
