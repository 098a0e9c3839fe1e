package playwright

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, scraper.KindTimeout, scraper.KindOf(classify("goto", fmt.Errorf("goto: %w", pw.ErrTimeout))))
	assert.Equal(t, scraper.KindSessionTerminated, scraper.KindOf(classify("eval", pw.ErrTargetClosed)))
	assert.Equal(t, scraper.KindSessionTerminated,
		scraper.KindOf(classify("eval", errors.New("Target page, context or browser has been closed"))))
	assert.Equal(t, scraper.KindConnection, scraper.KindOf(classify("goto", errors.New("net::ERR_NAME_NOT_RESOLVED"))))
	assert.Equal(t, scraper.KindTransient, scraper.KindOf(classify("eval", errors.New("boom"))))
}

func TestAwaitAbandonsOnContextDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	err := await(ctx, "navigate", func() error {
		<-release
		return nil
	})
	require.ErrorIs(t, err, scraper.ErrTimeout)
}

func TestAwaitPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	require.NoError(t, await(context.Background(), "html", func() error { return nil }))
}

func TestAwaitSessionReleasesLateArrivals(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	unblock := make(chan struct{})
	late := &fakeSession{}

	sess, err := awaitSession(ctx, "launch", func() (*fakeSession, error) {
		<-unblock
		return late, nil
	})
	require.ErrorIs(t, err, scraper.ErrTimeout)
	assert.Nil(t, sess)

	close(unblock)
	require.Eventually(t, func() bool { return late.released.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAwaitSessionHandsBackOnTimeSessions(t *testing.T) {
	t.Parallel()

	want := &fakeSession{}
	sess, err := awaitSession(context.Background(), "launch", func() (*fakeSession, error) {
		return want, nil
	})
	require.NoError(t, err)
	assert.Same(t, want, sess)
	assert.Zero(t, want.released.Load())
}

func TestAwaitSessionClassifiesStartErrors(t *testing.T) {
	t.Parallel()

	_, err := awaitSession(context.Background(), "launch", func() (*fakeSession, error) {
		return nil, errors.New("connection refused")
	})
	assert.Equal(t, scraper.KindConnection, scraper.KindOf(err))
}

func TestSessionReleaseClosesBrowserOnce(t *testing.T) {
	t.Parallel()

	b := &fakeBrowser{}
	s := &Session{browser: b}

	require.NoError(t, s.Quit(context.Background()))
	s.Release()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), b.closes.Load())

	dead := &fakeBrowser{}
	(&Session{browser: dead}).Release()
	require.Eventually(t, func() bool { return dead.closes.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLauncherDefaults(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{}, nil)
	assert.Equal(t, 45*time.Second, l.cfg.NavigationTimeout)
	assert.Equal(t, 1920, l.cfg.WindowWidth)
	require.NoError(t, l.Close())
}

// --- fakes ---

type fakeSession struct {
	released atomic.Int32
}

func (s *fakeSession) Release() { s.released.Add(1) }

// fakeBrowser implements only Close; any other call panics.
type fakeBrowser struct {
	pw.Browser
	closes atomic.Int32
}

func (b *fakeBrowser) Close(...pw.BrowserCloseOptions) error {
	b.closes.Add(1)
	return nil
}
