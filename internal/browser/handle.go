// Package browser owns the lifecycle of single-use browser automation
// sessions: creation with retry, liveness probing, scoped acquisition, and
// best-effort teardown. Concrete drivers live in subpackages.
package browser

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Session is the driver capability behind a Handle. Implementations map
// their library errors onto scraper error kinds.
type Session interface {
	// Location returns the current page URL. It must be a cheap round-trip.
	Location(ctx context.Context) (string, error)
	// Navigate loads url and waits until the document body is ready.
	Navigate(ctx context.Context, url string) error
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
}

// Quitter is the primary graceful shutdown operation.
type Quitter interface {
	Quit(ctx context.Context) error
}

// Closer is the secondary shutdown, used only when Quitter is absent.
type Closer interface {
	Close() error
}

// Releaser frees local resources (contexts, child processes) without
// blocking on the browser. It runs after every destroy, dead or alive.
type Releaser interface {
	Release()
}

// Launcher starts new sessions for a site.
type Launcher interface {
	Launch(ctx context.Context, s site.Site) (Session, error)
}

// Handle is an owned, single-use session bound to one site.
type Handle struct {
	session   Session
	site      site.Site
	createdAt time.Time
	healthy   atomic.Bool
	destroyed atomic.Bool
}

func newHandle(session Session, s site.Site, createdAt time.Time) *Handle {
	h := &Handle{session: session, site: s, createdAt: createdAt}
	h.healthy.Store(true)
	return h
}

// Site returns the site the session was created for.
func (h *Handle) Site() site.Site { return h.site }

// CreatedAt returns when the session was created.
func (h *Handle) CreatedAt() time.Time { return h.createdAt }

// Healthy returns the last known health. Once false it stays false.
func (h *Handle) Healthy() bool { return h.healthy.Load() }

// Destroyed reports whether the handle has been torn down.
func (h *Handle) Destroyed() bool { return h.destroyed.Load() }

// Navigate loads url in the session.
func (h *Handle) Navigate(ctx context.Context, url string) error {
	if err := h.usable("navigate"); err != nil {
		return err
	}
	return h.session.Navigate(ctx, url)
}

// HTML returns the current document markup.
func (h *Handle) HTML(ctx context.Context) (string, error) {
	if err := h.usable("html"); err != nil {
		return "", err
	}
	return h.session.HTML(ctx)
}

// Location returns the current page URL.
func (h *Handle) Location(ctx context.Context) (string, error) {
	if err := h.usable("location"); err != nil {
		return "", err
	}
	return h.session.Location(ctx)
}

func (h *Handle) usable(op string) error {
	if h.destroyed.Load() {
		return scraper.NewError(scraper.KindSessionTerminated, op, errHandleDestroyed)
	}
	if !h.healthy.Load() {
		return scraper.NewError(scraper.KindSessionTerminated, op, errHandleUnhealthy)
	}
	return nil
}
