// Package dedup answers whether a product URL has already been scraped.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/database"
	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Config controls the positive-result cache. A zero CacheSize disables it.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Gate checks the site table for an existing row before any browser work.
type Gate struct {
	cache  *expirable.LRU[string, struct{}]
	logger *zap.Logger
}

// NewGate builds a Gate.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gate{logger: logger.Named("dedup")}
	if cfg.CacheSize > 0 {
		g.cache = expirable.NewLRU[string, struct{}](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return g
}

// AlreadyDone reports whether url already has a row in the site's table.
// Sites without a known table fail open: false with a warning.
func (g *Gate) AlreadyDone(ctx context.Context, q database.Querier, s site.Site, url string) (bool, error) {
	table := s.Table()
	if table == "" {
		g.logger.Warn("no table for site, skipping dedup", zap.String("site", s.String()), zap.String("url", url))
		return false, nil
	}
	key := table + "|" + url
	if g.cache != nil {
		if _, ok := g.cache.Get(key); ok {
			metrics.ObserveDedupHit(s.String())
			return true, nil
		}
	}

	var exists bool
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE product_url = $1)", table)
	if err := q.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("dedup lookup on %s: %w", table, err)
	}
	if exists {
		metrics.ObserveDedupHit(s.String())
		if g.cache != nil {
			g.cache.Add(key, struct{}{})
		}
	}
	return exists, nil
}
