package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/config"
	"github.com/JakeFAU/product-scraper/internal/site"
)

func TestNew_FailsFastWithoutDSN(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), config.Config{Environment: "development"}, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "init database")
}

func TestClose_RunsInReverseOrderAndJoinsErrors(t *testing.T) {
	t.Parallel()

	var order []string
	a := &App{logger: zap.NewNop()}
	a.onClose("first", func() error { order = append(order, "first"); return nil })
	a.onClose("second", func() error { order = append(order, "second"); return errors.New("boom") })
	a.onClose("third", func() error { order = append(order, "third"); return nil })

	err := a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// A second Close is a no-op.
	require.NoError(t, a.Close())
}

func TestWorkerConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Environment: "production",
		Worker: config.WorkerConfig{
			MaxRetries:      3,
			RetryBase:       2 * time.Second,
			RetryMax:        time.Minute,
			ExtractAttempts: 2,
			ExtractDelay:    time.Second,
			HardTimeout:     5 * time.Minute,
			SoftTimeout:     4 * time.Minute,
		},
	}

	wc := WorkerConfig(cfg)
	assert.Equal(t, "production", wc.Environment)
	assert.Equal(t, 3, wc.MaxRetries)
	assert.Equal(t, 2*time.Second, wc.RetryBackoff.Base)
	assert.Equal(t, time.Minute, wc.RetryBackoff.Max)
	assert.False(t, wc.RetryBackoff.Jitter)
	assert.Equal(t, 5*time.Minute, wc.HardTimeout)
}

func TestRateLimitConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{RateLimit: config.RateLimitConfig{
		RPS:   2,
		Burst: 3,
		Sites: map[string]config.RateRule{
			"farfetch": {RPS: 0.5, Burst: 1},
			"bogus":    {RPS: 9, Burst: 9},
		},
	}}

	rl := RateLimitConfig(cfg)
	assert.Equal(t, 2.0, rl.Default.RPS)
	assert.Equal(t, 3, rl.Default.Burst)
	require.Len(t, rl.Sites, 1)
	assert.Equal(t, 0.5, rl.Sites[site.Farfetch].RPS)
}

func TestDatabaseAndListingConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		DB:      config.DBConfig{DSN: "postgres://x", MaxConns: 8, MinConns: 2, MaxConnLifetime: time.Hour},
		Listing: config.ListingConfig{UserAgent: "ua", Timeout: time.Second, MaxResults: 50},
	}

	db := DatabaseConfig(cfg)
	assert.Equal(t, "postgres://x", db.DSN)
	assert.Equal(t, int32(8), db.MaxConns)

	lc := ListingConfig(cfg)
	assert.Equal(t, "ua", lc.UserAgent)
	assert.Equal(t, 50, lc.MaxResults)
}
