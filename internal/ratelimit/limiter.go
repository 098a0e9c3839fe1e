// Package ratelimit paces navigation per retailer with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Rule is a token bucket setting. RPS <= 0 means unlimited.
type Rule struct {
	RPS   float64
	Burst int
}

// Config holds the default rule and per-site overrides.
type Config struct {
	Default Rule
	Sites   map[site.Site]Rule
}

// Limiter manages one bucket per site, created on first use.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	limiters map[site.Site]*rate.Limiter
	now      func() time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:      cfg,
		limiters: make(map[site.Site]*rate.Limiter),
		now:      time.Now,
	}
}

// Wait blocks until s has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, s site.Site) error {
	limiter := l.limiterFor(s)

	start := l.now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", s, err)
	}
	// Tokens available immediately are not a delay worth recording.
	if waited := l.now().Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(s.String(), waited)
	}
	return nil
}

func (l *Limiter) limiterFor(s site.Site) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[s]; ok {
		return limiter
	}
	rule, ok := l.cfg.Sites[s]
	if !ok {
		rule = l.cfg.Default
	}
	limit := rate.Limit(rule.RPS)
	if rule.RPS <= 0 {
		limit = rate.Inf
	}
	burst := rule.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	l.limiters[s] = limiter
	return limiter
}
