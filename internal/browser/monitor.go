package browser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

var (
	errHandleDestroyed = errors.New("session handle already destroyed")
	errHandleUnhealthy = errors.New("session handle failed a liveness check")
)

// Monitor probes session liveness.
type Monitor struct {
	timeout time.Duration
	logger  *zap.Logger
}

// NewMonitor builds a Monitor whose probes are bounded by timeout.
func NewMonitor(timeout time.Duration, logger *zap.Logger) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{timeout: timeout, logger: logger}
}

// IsAlive performs one cheap round-trip against the session. It never
// panics and never returns an error: any failure counts as unhealthy, and
// an unhealthy handle stays unhealthy.
func (m *Monitor) IsAlive(ctx context.Context, h *Handle) (alive bool) {
	if h == nil || h.destroyed.Load() || !h.healthy.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("liveness probe panicked",
				zap.String("site", h.site.String()),
				zap.Any("panic", r),
			)
			h.healthy.Store(false)
			alive = false
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	_, err := h.session.Location(probeCtx)
	if err == nil {
		return true
	}
	h.healthy.Store(false)

	switch scraper.KindOf(err) {
	case scraper.KindSessionTerminated, scraper.KindConnection:
		m.logger.Debug("session not alive",
			zap.String("site", h.site.String()),
			zap.Error(err),
		)
	default:
		m.logger.Warn("liveness probe failed",
			zap.String("site", h.site.String()),
			zap.Error(err),
		)
	}
	return false
}
