// Package playwright is the alternative session driver backed by
// playwright-go. One driver process is shared; each Launch starts its own
// browser so sessions never share cookies or cache.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/browser"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Config controls browser launch options.
type Config struct {
	Headless          bool
	ExecPath          string
	ProxyServer       string
	UserAgents        []string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
}

// Launcher starts Chromium browsers through a shared playwright driver.
type Launcher struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	driver *pw.Playwright
}

// NewLauncher builds a Launcher. The driver starts on first Launch.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Close stops the playwright driver and every browser it spawned.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.driver == nil {
		return nil
	}
	err := l.driver.Stop()
	l.driver = nil
	if err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

func (l *Launcher) ensureDriver() (*pw.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.driver != nil {
		return l.driver, nil
	}
	driver, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	l.driver = driver
	return driver, nil
}

// Launch starts a browser with one page.
func (l *Launcher) Launch(ctx context.Context, s site.Site) (browser.Session, error) {
	driver, err := l.ensureDriver()
	if err != nil {
		return nil, scraper.NewError(scraper.KindConnection, "launch", err)
	}

	ua := l.pickUserAgent()
	opts := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(l.cfg.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			fmt.Sprintf("--window-size=%d,%d", l.cfg.WindowWidth, l.cfg.WindowHeight),
		},
	}
	if l.cfg.ExecPath != "" {
		opts.ExecutablePath = pw.String(l.cfg.ExecPath)
	}
	if l.cfg.ProxyServer != "" {
		opts.Proxy = &pw.Proxy{Server: l.cfg.ProxyServer}
	}

	sess, err := awaitSession(ctx, "launch", func() (*Session, error) {
		b, err := driver.Chromium.Launch(opts)
		if err != nil {
			return nil, err
		}
		ctxOpts := pw.BrowserNewContextOptions{
			Viewport: &pw.Size{Width: l.cfg.WindowWidth, Height: l.cfg.WindowHeight},
		}
		if ua != "" {
			ctxOpts.UserAgent = pw.String(ua)
		}
		bctx, err := b.NewContext(ctxOpts)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		if err := bctx.AddInitScript(pw.Script{Content: pw.String(stealthScript)}); err != nil {
			_ = b.Close()
			return nil, err
		}
		p, err := bctx.NewPage()
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		p.SetDefaultTimeout(float64(l.cfg.NavigationTimeout.Milliseconds()))
		return &Session{browser: b, page: p, navTimeout: l.cfg.NavigationTimeout}, nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Debug("browser launched", zap.String("site", s.String()), zap.String("user_agent", ua))
	return sess, nil
}

func (l *Launcher) pickUserAgent() string {
	if len(l.cfg.UserAgents) == 0 {
		return ""
	}
	return l.cfg.UserAgents[rand.IntN(len(l.cfg.UserAgents))]
}

// Session is one playwright browser with a single page.
type Session struct {
	browser    pw.Browser
	page       pw.Page
	navTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Location evaluates a no-op script returning the page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := await(ctx, "location", func() error {
		if !s.browser.IsConnected() {
			return pw.ErrTargetClosed
		}
		v, err := s.page.Evaluate("() => window.location.href")
		if err != nil {
			return err
		}
		loc, _ = v.(string)
		return nil
	})
	return loc, err
}

// Navigate loads rawURL and waits for DOMContentLoaded.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	return await(ctx, "navigate", func() error {
		_, err := s.page.Goto(rawURL, pw.PageGotoOptions{
			WaitUntil: pw.WaitUntilStateDomcontentloaded,
			Timeout:   pw.Float(float64(s.navTimeout.Milliseconds())),
		})
		return err
	})
}

// HTML returns the serialized page.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := await(ctx, "html", func() error {
		var err error
		html, err = s.page.Content()
		return err
	})
	return html, err
}

// Quit closes the browser process.
func (s *Session) Quit(ctx context.Context) error {
	return await(ctx, "quit", s.closeBrowser)
}

// Release closes the browser in the background. Dead handles skip Quit, so
// this is what reaps their process.
func (s *Session) Release() {
	go func() { _ = s.closeBrowser() }()
}

func (s *Session) closeBrowser() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
	})
	return s.closeErr
}

// await runs a blocking playwright call and abandons it if ctx ends first.
func await(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return classify(op, err)
		}
		return nil
	case <-ctx.Done():
		return contextError(ctx, op)
	}
}

// awaitSession is await for calls that produce a session. A session that
// arrives after the caller gave up is released rather than leaked.
func awaitSession[S browser.Releaser](ctx context.Context, op string, start func() (S, error)) (S, error) {
	type result struct {
		sess S
		err  error
	}
	done := make(chan result)
	abandoned := make(chan struct{})
	go func() {
		sess, err := start()
		select {
		case done <- result{sess, err}:
		case <-abandoned:
			if err == nil {
				sess.Release()
			}
		}
	}()

	var zero S
	select {
	case r := <-done:
		if r.err != nil {
			return zero, classify(op, r.err)
		}
		return r.sess, nil
	case <-ctx.Done():
		close(abandoned)
		return zero, contextError(ctx, op)
	}
}

func contextError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return scraper.NewError(scraper.KindTimeout, op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, ctx.Err())
}

func classify(op string, err error) error {
	switch {
	case errors.Is(err, pw.ErrTimeout):
		return scraper.NewError(scraper.KindTimeout, op, err)
	case errors.Is(err, pw.ErrTargetClosed):
		return scraper.NewError(scraper.KindSessionTerminated, op, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "target page, context or browser has been closed"),
		strings.Contains(msg, "browser has been closed"):
		return scraper.NewError(scraper.KindSessionTerminated, op, err)
	case strings.Contains(msg, "net::err_"), strings.Contains(msg, "connection refused"):
		return scraper.NewError(scraper.KindConnection, op, err)
	}
	return scraper.NewError(scraper.KindTransient, op, err)
}
