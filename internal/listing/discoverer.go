// Package listing discovers product URLs on a retailer's category page.
package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Config controls the listing crawl.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxResults caps results when the caller passes max <= 0.
	MaxResults int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Discoverer crawls a single category page and returns product links.
type Discoverer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Discoverer.
func New(cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, logger: logger.Named("listing")}
}

// Discover returns up to max unique product URLs linked from categoryURL.
// Only links on the same host whose path matches the site's product
// pattern are kept; query strings and fragments are stripped.
func (d *Discoverer) Discover(ctx context.Context, categoryURL string, max int) ([]string, error) {
	s, ok := site.FromURL(categoryURL)
	if !ok {
		return nil, scraper.Permanentf("discover", "unsupported site for %q", categoryURL)
	}
	info, _ := s.Info()
	base, err := url.Parse(categoryURL)
	if err != nil || base.Host == "" {
		return nil, scraper.Permanentf("discover", "invalid category url %q", categoryURL)
	}
	if max <= 0 || max > d.cfg.MaxResults {
		max = d.cfg.MaxResults
	}

	opts := []colly.CollectorOption{
		colly.MaxDepth(1),
		colly.StdlibContext(ctx),
	}
	if d.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(d.cfg.UserAgent))
	}
	collector := colly.NewCollector(opts...)
	collector.SetRequestTimeout(d.cfg.Timeout)
	if d.cfg.Transport != nil {
		collector.WithTransport(d.cfg.Transport)
	}

	var (
		mu       sync.Mutex
		links    []string
		crawlErr error
	)
	seen := map[string]struct{}{}
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link, ok := normalize(e.Request.AbsoluteURL(e.Attr("href")), base.Host)
		if !ok || !info.ProductPath.MatchString(link.Path) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(links) >= max {
			return
		}
		key := link.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, key)
	})
	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		crawlErr = fmt.Errorf("fetch %s (status %d): %w", r.Request.URL, r.StatusCode, err)
	})

	visitErr := collector.Visit(categoryURL)
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	if crawlErr != nil {
		return nil, crawlErr
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit %s: %w", categoryURL, visitErr)
	}
	d.logger.Info("listing crawled",
		zap.String("site", s.String()),
		zap.String("url", categoryURL),
		zap.Int("found", len(links)),
	)
	return links, nil
}

func normalize(raw, host string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, host) {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, true
}
