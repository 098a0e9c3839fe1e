package scraper

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Backoff computes exponential delays, optionally with jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Delay returns the wait before retry number attempt (1-based):
// Base * 2^(attempt-1), capped at Max. With Jitter the upper half of the
// delay is randomized, so the result lies in [delay/2, delay).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if !b.Jitter {
		return time.Duration(delay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
