// Package site enumerates the supported source retailers.
package site

import (
	"fmt"
	"regexp"
	"strings"
)

// Site identifies a supported retailer. The zero value is invalid.
type Site string

// Supported retailers, in the order ingress resolves URLs against them.
const (
	Farfetch   Site = "farfetch"
	Lyst       Site = "lyst"
	Modesens   Site = "modesens"
	Reversible Site = "reversible"
	Italist    Site = "italist"
	Leam       Site = "leam"
	Selfridge  Site = "selfridge"
)

// Info is the per-site lookup entry.
type Info struct {
	// Table is the SiteProductRecord table for the site.
	Table string
	// Match is the substring that identifies the site in a product URL.
	Match string
	// ProductPath matches product-detail URLs during listing discovery.
	ProductPath *regexp.Regexp
}

var (
	order = []Site{Farfetch, Lyst, Modesens, Reversible, Italist, Leam, Selfridge}

	registry = map[Site]Info{
		Farfetch: {
			Table:       "farfetch",
			Match:       "farfetch",
			ProductPath: regexp.MustCompile(`/shopping/.*-item-\d+\.aspx`),
		},
		Lyst: {
			Table:       "lyst",
			Match:       "lyst",
			ProductPath: regexp.MustCompile(`/[a-z-]+/[a-z0-9-]+-\d+/?$`),
		},
		Modesens: {
			Table:       "modesens",
			Match:       "modesens",
			ProductPath: regexp.MustCompile(`/product/[a-z0-9-]+-\d+/?`),
		},
		Reversible: {
			Table:       "reversible",
			Match:       "reversible",
			ProductPath: regexp.MustCompile(`/products?/[a-z0-9-]+`),
		},
		Italist: {
			Table:       "italist",
			Match:       "italist",
			ProductPath: regexp.MustCompile(`/[a-z]{2}/[a-z-]+/[a-z-]+/[a-z0-9-]+/\d+/\d+/?`),
		},
		Leam: {
			Table:       "leam",
			Match:       "leam",
			ProductPath: regexp.MustCompile(`/[a-z0-9-]+-\d{6,}\.html`),
		},
		Selfridge: {
			Table:       "selfridge",
			Match:       "selfridge",
			ProductPath: regexp.MustCompile(`/cat/[a-z0-9-]+_[A-Z0-9-]+/?`),
		},
	}
)

// All returns every supported site in resolution order.
func All() []Site {
	out := make([]Site, len(order))
	copy(out, order)
	return out
}

// Parse converts an identifier into a Site.
func Parse(s string) (Site, error) {
	candidate := Site(strings.ToLower(strings.TrimSpace(s)))
	if !candidate.Valid() {
		return "", fmt.Errorf("unsupported site %q", s)
	}
	return candidate, nil
}

// FromURL resolves the retailer from a product URL by substring match.
func FromURL(rawURL string) (Site, bool) {
	lower := strings.ToLower(rawURL)
	for _, s := range order {
		if strings.Contains(lower, registry[s].Match) {
			return s, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the enumerated sites.
func (s Site) Valid() bool {
	_, ok := registry[s]
	return ok
}

// Info returns the lookup entry for s.
func (s Site) Info() (Info, bool) {
	info, ok := registry[s]
	return info, ok
}

// Table returns the SiteProductRecord table name, or "" if s is not supported.
func (s Site) Table() string {
	return registry[s].Table
}

func (s Site) String() string {
	return string(s)
}
