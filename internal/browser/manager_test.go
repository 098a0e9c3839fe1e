package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

func TestManager_CreateReturnsHealthyHandle(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{sessions: []*fakeSession{{}}}
	mgr := newTestManager(launcher)

	h, err := mgr.Create(context.Background(), site.Lyst)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, site.Lyst, h.Site())
	assert.True(t, h.Healthy())
	assert.Equal(t, int64(1), mgr.Live())

	mgr.Destroy(context.Background(), h)
	assert.Equal(t, int64(0), mgr.Live())
	assert.Equal(t, 1, launcher.sessions[0].quits())
}

func TestManager_CreateRetriesWithBackoffThenFails(t *testing.T) {
	t.Parallel()

	launcher := &fakeLauncher{err: errors.New("chrome not found")}
	mgr := newTestManager(launcher)
	var delays []time.Duration
	mgr.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := mgr.Create(context.Background(), site.Farfetch)
	require.Error(t, err)
	require.ErrorIs(t, err, scraper.ErrCreationFailed)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Equal(t, 3, launcher.calls())
	require.Len(t, delays, 2)
	// Jittered delays stay within [base*2^(n-1)/2, base*2^(n-1)).
	assert.GreaterOrEqual(t, delays[0], 5*time.Millisecond)
	assert.Less(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 10*time.Millisecond)
	assert.Less(t, delays[1], 20*time.Millisecond)
	assert.Equal(t, int64(0), mgr.Live())
}

func TestManager_CreateDiscardsUnhealthyFreshSession(t *testing.T) {
	t.Parallel()

	broken := &fakeSession{probeErr: scraper.NewError(scraper.KindConnection, "location", errors.New("refused"))}
	good := &fakeSession{}
	launcher := &fakeLauncher{sessions: []*fakeSession{broken, good}}
	mgr := newTestManager(launcher)

	h, err := mgr.Create(context.Background(), site.Italist)
	require.NoError(t, err)
	assert.Equal(t, 2, launcher.calls())
	assert.Equal(t, 1, broken.quits(), "unhealthy fresh session must be shut down")
	assert.Equal(t, 1, broken.releases())
	assert.Equal(t, int64(1), mgr.Live())

	mgr.Destroy(context.Background(), h)
	assert.Equal(t, int64(0), mgr.Live())
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{sess}})
	h, err := mgr.Create(context.Background(), site.Leam)
	require.NoError(t, err)

	mgr.Destroy(context.Background(), h)
	mgr.Destroy(context.Background(), h)
	mgr.Destroy(context.Background(), nil)

	assert.Equal(t, 1, sess.quits())
	assert.Equal(t, 1, sess.releases())
	assert.True(t, h.Destroyed())
	assert.Equal(t, int64(0), mgr.Live())

	_, err = h.HTML(context.Background())
	require.ErrorIs(t, err, scraper.ErrSessionTerminated)
}

func TestManager_DestroySkipsShutdownForDeadSession(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{sess}})
	h, err := mgr.Create(context.Background(), site.Modesens)
	require.NoError(t, err)

	sess.setProbeErr(scraper.NewError(scraper.KindSessionTerminated, "location", errors.New("target closed")))
	mgr.Destroy(context.Background(), h)

	assert.Equal(t, 0, sess.quits())
	assert.Equal(t, 1, sess.releases())
	assert.Equal(t, int64(0), mgr.Live())
}

func TestManager_DestroyFallsBackToCloseAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	sess := &closeOnlySession{closeErr: errors.New("already gone")}
	launcher := launcherFunc(func(context.Context, site.Site) (Session, error) { return sess, nil })
	mgr := NewManager(launcher, NewMonitor(time.Second, zap.NewNop()), ManagerConfig{}, fixedClock{}, zap.NewNop())

	h, err := mgr.Create(context.Background(), site.Reversible)
	require.NoError(t, err)
	require.NotPanics(t, func() { mgr.Destroy(context.Background(), h) })
	assert.Equal(t, 1, sess.closes)
}

func TestManager_DestroyRecoversFromPanickingShutdown(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{quitPanics: true}
	mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{sess}})
	h, err := mgr.Create(context.Background(), site.Selfridge)
	require.NoError(t, err)

	require.NotPanics(t, func() { mgr.Destroy(context.Background(), h) })
	assert.Equal(t, int64(0), mgr.Live())
	assert.Equal(t, 1, sess.releases())
}

func TestManager_WithSessionReleasesOnEveryExitPath(t *testing.T) {
	t.Parallel()

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{{}}})
		boom := errors.New("selector not found")
		err := mgr.WithSession(context.Background(), site.Lyst, func(context.Context, *Handle) error {
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), mgr.Live())
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()
		mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{{}}})
		require.Panics(t, func() {
			_ = mgr.WithSession(context.Background(), site.Lyst, func(context.Context, *Handle) error {
				panic("renderer crashed")
			})
		})
		assert.Equal(t, int64(0), mgr.Live())
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		sess := &fakeSession{}
		mgr := newTestManager(&fakeLauncher{sessions: []*fakeSession{sess}})
		ctx, cancel := context.WithCancel(context.Background())
		err := mgr.WithSession(ctx, site.Lyst, func(ctx context.Context, _ *Handle) error {
			cancel()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(0), mgr.Live())
		assert.Equal(t, 1, sess.quits(), "teardown runs detached from the canceled context")
	})
}

func TestMonitor_IsAliveNeverFailsLoudly(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(time.Second, zap.NewNop())
	assert.False(t, monitor.IsAlive(context.Background(), nil))

	panicking := newHandle(&fakeSession{probePanics: true}, site.Lyst, time.Time{})
	require.NotPanics(t, func() {
		assert.False(t, monitor.IsAlive(context.Background(), panicking))
	})
	assert.False(t, panicking.Healthy())

	flaky := &fakeSession{probeErr: errors.New("unexpected")}
	h := newHandle(flaky, site.Lyst, time.Time{})
	assert.False(t, monitor.IsAlive(context.Background(), h))

	flaky.setProbeErr(nil)
	assert.False(t, monitor.IsAlive(context.Background(), h), "a failed handle is never revived")
}

// --- fakes ---

func newTestManager(l Launcher) *Manager {
	mgr := NewManager(
		l,
		NewMonitor(time.Second, zap.NewNop()),
		ManagerConfig{CreateBackoff: scraper.Backoff{Base: 10 * time.Millisecond}},
		fixedClock{},
		zap.NewNop(),
	)
	mgr.sleep = func(context.Context, time.Duration) error { return nil }
	return mgr
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1_700_000_000, 0).UTC() }

type launcherFunc func(context.Context, site.Site) (Session, error)

func (f launcherFunc) Launch(ctx context.Context, s site.Site) (Session, error) { return f(ctx, s) }

type fakeLauncher struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
	n        int
}

func (l *fakeLauncher) Launch(context.Context, site.Site) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.n++
	if l.err != nil {
		return nil, l.err
	}
	if len(l.sessions) == 0 {
		return nil, errors.New("no sessions left")
	}
	idx := l.n - 1
	if idx >= len(l.sessions) {
		idx = len(l.sessions) - 1
	}
	return l.sessions[idx], nil
}

func (l *fakeLauncher) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

type fakeSession struct {
	mu          sync.Mutex
	probeErr    error
	probePanics bool
	quitPanics  bool
	quitCount   int
	relCount    int
}

func (s *fakeSession) Location(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.probePanics {
		panic("nil target")
	}
	return "about:blank", s.probeErr
}

func (s *fakeSession) Navigate(context.Context, string) error { return nil }

func (s *fakeSession) HTML(context.Context) (string, error) { return "<html></html>", nil }

func (s *fakeSession) Quit(context.Context) error {
	s.mu.Lock()
	s.quitCount++
	panics := s.quitPanics
	s.mu.Unlock()
	if panics {
		panic("browser already closed")
	}
	return nil
}

func (s *fakeSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relCount++
}

func (s *fakeSession) setProbeErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probeErr = err
}

func (s *fakeSession) quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quitCount
}

func (s *fakeSession) releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relCount
}

type closeOnlySession struct {
	closes   int
	closeErr error
}

func (s *closeOnlySession) Location(context.Context) (string, error) { return "about:blank", nil }
func (s *closeOnlySession) Navigate(context.Context, string) error   { return nil }
func (s *closeOnlySession) HTML(context.Context) (string, error)     { return "", nil }
func (s *closeOnlySession) Close() error {
	s.closes++
	return s.closeErr
}
