// Package system is the wall clock behind job timing, dead-letter stamps
// and browser session ages.
package system

import (
	"time"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

var _ scraper.Clock = Clock{}

// Clock implements scraper.Clock on the wall clock, in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
