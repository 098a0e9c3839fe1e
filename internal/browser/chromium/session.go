// Package chromium drives headless Chrome through chromedp. Every Launch
// starts a dedicated browser process so no state leaks between jobs.
package chromium

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/browser"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Config controls browser process flags and per-call timeouts.
type Config struct {
	Headless          bool
	ExecPath          string
	NoSandbox         bool
	ProxyServer       string
	UserAgents        []string
	WindowWidth       int
	WindowHeight      int
	StartTimeout      time.Duration
	NavigationTimeout time.Duration
}

// Launcher starts one Chrome process per session.
type Launcher struct {
	cfg    Config
	root   context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewLauncher builds a Launcher. Close kills any browser still running.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Launcher{cfg: cfg, root: root, cancel: cancel, logger: logger}
}

// Close cancels the root allocator context.
func (l *Launcher) Close() {
	l.cancel()
}

// Launch starts a browser and returns once it answers CDP commands.
func (l *Launcher) Launch(ctx context.Context, s site.Site) (browser.Session, error) {
	ua := l.pickUserAgent()
	allocCtx, allocCancel := chromedp.NewExecAllocator(l.root, l.allocatorOptions(ua)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	sess := &Session{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		navTimeout:    l.cfg.NavigationTimeout,
	}

	// The first Run allocates the browser and binds it to the context it
	// is given, so it must run on browserCtx rather than a timeout child.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()
	select {
	case err := <-started:
		if err != nil {
			sess.Release()
			return nil, classify("start browser", err)
		}
	case <-time.After(l.cfg.StartTimeout):
		sess.Release()
		return nil, scraper.NewError(scraper.KindTimeout, "start browser",
			fmt.Errorf("no response within %s", l.cfg.StartTimeout))
	case <-ctx.Done():
		sess.Release()
		return nil, fmt.Errorf("start browser: %w", ctx.Err())
	}

	go func() {
		<-browserCtx.Done()
		allocCancel()
	}()

	prepare := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if ua != "" {
		prepare = append(prepare, emulation.SetUserAgentOverride(ua).WithAcceptLanguage("en-US,en;q=0.9"))
	}
	if err := sess.run(ctx, "prepare", l.cfg.StartTimeout, prepare...); err != nil {
		sess.Release()
		return nil, err
	}
	l.logger.Debug("browser launched", zap.String("site", s.String()), zap.String("user_agent", ua))
	return sess, nil
}

func (l *Launcher) allocatorOptions(ua string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
	)
	if l.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if l.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(l.cfg.ProxyServer))
	}
	return opts
}

func (l *Launcher) pickUserAgent() string {
	if len(l.cfg.UserAgents) == 0 {
		return ""
	}
	return l.cfg.UserAgents[rand.IntN(len(l.cfg.UserAgents))]
}

// Session is one Chrome process with a single tab.
type Session struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	navTimeout    time.Duration
	releaseOnce   sync.Once
}

// Location reads the current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, "location", s.navTimeout, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Navigate loads rawURL and waits for the body element.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	return s.run(ctx, "navigate", s.navTimeout,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// HTML returns the serialized document element.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "html", s.navTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// Quit closes the browser gracefully, then releases the process.
func (s *Session) Quit(ctx context.Context) error {
	defer s.Release()
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.browserCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("close browser: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close browser: %w", ctx.Err())
	}
}

// Release cancels the tab and allocator contexts, which kills the process.
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		s.browserCancel()
		s.allocCancel()
	})
}

func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if err := s.browserCtx.Err(); err != nil {
		return scraper.NewError(scraper.KindSessionTerminated, op, err)
	}
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return scraper.NewError(scraper.KindTimeout, op, ctxErr)
			}
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		return classify(op, err)
	}
	return nil
}

// classify maps chromedp and network failures onto scraper kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return scraper.NewError(scraper.KindTimeout, op, err)
	case errors.Is(err, context.Canceled),
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget):
		return scraper.NewError(scraper.KindSessionTerminated, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return scraper.NewError(scraper.KindTimeout, op, err)
		}
		return scraper.NewError(scraper.KindConnection, op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"net::err_", "websocket", "connection refused", "connection reset", "broken pipe", "eof"} {
		if strings.Contains(msg, marker) {
			return scraper.NewError(scraper.KindConnection, op, err)
		}
	}
	return scraper.NewError(scraper.KindTransient, op, err)
}

// forwardCancel cancels the chromedp task when the caller's context ends,
// without tying the browser's own lifetime to the caller.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
