package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// ManagerConfig tunes session creation and teardown.
type ManagerConfig struct {
	// CreateAttempts bounds launches per Create call.
	CreateAttempts int
	// CreateBackoff spaces launch attempts; jitter is always applied.
	CreateBackoff scraper.Backoff
	// ShutdownTimeout bounds Destroy, which runs detached from caller
	// cancellation.
	ShutdownTimeout time.Duration
}

// Manager is the sole authority for creating and destroying sessions.
// Every job gets a fresh session and every session is destroyed when the
// job's scope ends; sessions are never pooled.
type Manager struct {
	launcher Launcher
	monitor  *Monitor
	cfg      ManagerConfig
	clock    scraper.Clock
	logger   *zap.Logger
	live     atomic.Int64
	sleep    func(context.Context, time.Duration) error
}

// NewManager constructs a Manager.
func NewManager(
	launcher Launcher,
	monitor *Monitor,
	cfg ManagerConfig,
	clock scraper.Clock,
	logger *zap.Logger,
) *Manager {
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = 3
	}
	if cfg.CreateBackoff.Base <= 0 {
		cfg.CreateBackoff.Base = time.Second
	}
	cfg.CreateBackoff.Jitter = true
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		launcher: launcher,
		monitor:  monitor,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		sleep:    scraper.Sleep,
	}
}

// Live returns the number of sessions created and not yet destroyed.
func (m *Manager) Live() int64 {
	return m.live.Load()
}

// Create launches a session and verifies it with a liveness probe. A fresh
// session that fails its probe is discarded and counted as a failed
// attempt. Exhausting attempts yields an error matching
// scraper.ErrCreationFailed.
func (m *Manager) Create(ctx context.Context, s site.Site) (*Handle, error) {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.CreateAttempts; attempt++ {
		if attempt > 1 {
			delay := m.cfg.CreateBackoff.Delay(attempt - 1)
			m.logger.Debug("retrying session creation",
				zap.String("site", s.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := m.sleep(ctx, delay); err != nil {
				return nil, scraper.NewError(scraper.KindCreationFailed, "create session",
					fmt.Errorf("%s: backoff interrupted: %w", s, err))
			}
		}

		h, err := m.launch(ctx, s)
		if err == nil {
			m.logger.Debug("session created",
				zap.String("site", s.String()),
				zap.Int("attempt", attempt),
			)
			return h, nil
		}
		lastErr = err
		metrics.ObserveSessionCreateFailure(s.String())
		m.logger.Warn("session creation attempt failed",
			zap.String("site", s.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, scraper.NewError(scraper.KindCreationFailed, "create session",
		fmt.Errorf("%s: %d attempts exhausted: %w", s, m.cfg.CreateAttempts, lastErr))
}

func (m *Manager) launch(ctx context.Context, s site.Site) (*Handle, error) {
	session, err := m.launcher.Launch(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	if session == nil {
		return nil, errors.New("launch: driver returned no session")
	}
	h := newHandle(session, s, m.clock.Now())
	m.track(1)
	if m.monitor.IsAlive(ctx, h) {
		return h, nil
	}
	// The probe failed, so the driver may still hold a process; force the
	// shutdown instead of the dead-handle shortcut.
	if h.destroyed.CompareAndSwap(false, true) {
		m.track(-1)
		tctx, cancel := m.teardownContext(ctx)
		m.shutdown(tctx, h)
		cancel()
		m.release(h)
	}
	return nil, errors.New("fresh session failed liveness check")
}

// Destroy tears h down at most once. A dead handle skips the shutdown call.
// Errors and panics are logged, never returned.
func (m *Manager) Destroy(ctx context.Context, h *Handle) {
	if h == nil || h.destroyed.Load() {
		return
	}
	tctx, cancel := m.teardownContext(ctx)
	defer cancel()

	alive := m.monitor.IsAlive(tctx, h)
	if !h.destroyed.CompareAndSwap(false, true) {
		return
	}
	m.track(-1)
	defer m.release(h)

	if !alive {
		m.logger.Debug("session already dead; skipping shutdown",
			zap.String("site", h.site.String()),
			zap.Duration("age", m.clock.Now().Sub(h.createdAt)),
		)
		return
	}
	m.shutdown(tctx, h)
}

// WithSession creates a session, runs fn, and destroys the session on
// every exit path including panics and cancellation.
func (m *Manager) WithSession(ctx context.Context, s site.Site, fn func(context.Context, *Handle) error) error {
	h, err := m.Create(ctx, s)
	if err != nil {
		return err
	}
	defer m.Destroy(ctx, h)
	return fn(ctx, h)
}

func (m *Manager) teardownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
}

func (m *Manager) shutdown(ctx context.Context, h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("session shutdown panicked",
				zap.String("site", h.site.String()),
				zap.Any("panic", r),
			)
		}
	}()

	var err error
	switch s := h.session.(type) {
	case Quitter:
		err = s.Quit(ctx)
	case Closer:
		err = s.Close()
	default:
		m.logger.Debug("session has no shutdown operation", zap.String("site", h.site.String()))
	}
	if err != nil {
		m.logger.Warn("session shutdown failed",
			zap.String("site", h.site.String()),
			zap.Error(err),
		)
	}
}

func (m *Manager) release(h *Handle) {
	r, ok := h.session.(Releaser)
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Warn("session release panicked",
				zap.String("site", h.site.String()),
				zap.Any("panic", rec),
			)
		}
	}()
	r.Release()
}

func (m *Manager) track(delta int64) {
	m.live.Add(delta)
	if delta > 0 {
		metrics.IncLiveSessions()
	} else {
		metrics.DecLiveSessions()
	}
}
