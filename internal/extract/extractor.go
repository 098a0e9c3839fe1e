// Package extract turns rendered product pages into normalized records.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// Page is the slice of a browser session an extractor needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
}

// Extractor returns a normalized record for url, or nil when the page
// carries no product data. Errors from Page keep their scraper kind.
type Extractor interface {
	Extract(ctx context.Context, page Page, url string) (product.Record, error)
}

// Selectors lists CSS selector fallbacks per field, tried in order.
type Selectors struct {
	Brand         []string
	Name          []string
	Details       []string
	Category      []string
	Images        []string
	OriginalPrice []string
	SalePrice     []string
	Discount      []string
	SizeAndFit    []string
}

// DOM extracts fields with CSS selectors and falls back to schema.org
// Product JSON-LD embedded in the page.
type DOM struct {
	site   site.Site
	sel    Selectors
	logger *zap.Logger
}

// NewDOM builds a DOM extractor for s.
func NewDOM(s site.Site, sel Selectors, logger *zap.Logger) *DOM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DOM{site: s, sel: sel, logger: logger}
}

// Extract navigates to url and parses the rendered document.
func (d *DOM) Extract(ctx context.Context, page Page, url string) (product.Record, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	rec, err := d.Parse(html)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec[product.FieldProductURL] = url
	}
	return rec, nil
}

// Parse builds a record from page markup. It returns nil when neither a
// product name nor a brand can be found.
func (d *DOM) Parse(html string) (product.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, scraper.NewError(scraper.KindTransient, "parse document", err)
	}
	ld := findProductLD(doc)

	rec := product.Record{}
	setFirst(rec, product.FieldBrand, firstText(doc, d.sel.Brand), ld.Brand)
	setFirst(rec, product.FieldProductName, firstText(doc, d.sel.Name), ld.Name)
	if rec[product.FieldProductName] == "" && rec[product.FieldBrand] == "" {
		d.logger.Debug("no product fields found", zap.String("site", d.site.String()))
		return nil, nil
	}
	setFirst(rec, product.FieldProductDetails, firstText(doc, d.sel.Details), ld.Description)
	setFirst(rec, product.FieldCategory, breadcrumb(doc, d.sel.Category))
	setFirst(rec, product.FieldImageURLs, imageList(doc, d.sel.Images), strings.Join(ld.Images, ","))
	setFirst(rec, product.FieldOriginalPrice, firstText(doc, d.sel.OriginalPrice), ld.Price)
	setFirst(rec, product.FieldSalePrice, firstText(doc, d.sel.SalePrice))
	setFirst(rec, product.FieldDiscount, discountText(firstText(doc, d.sel.Discount)))
	setFirst(rec, product.FieldSizeAndFit, sizeList(doc, d.sel.SizeAndFit))
	if thumb, ok := product.Thumbnail(rec[product.FieldImageURLs]); ok {
		rec[product.FieldThumbnail] = thumb
	}
	product.FillPricing(rec)
	return rec, nil
}

func setFirst(rec product.Record, field string, candidates ...string) {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			rec[field] = c
			return
		}
	}
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := normalizeSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func breadcrumb(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var parts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := normalizeSpace(s.Text())
			if text == "" || strings.EqualFold(text, "home") {
				return
			}
			parts = append(parts, text)
		})
		if len(parts) > 0 {
			return strings.Join(parts, " > ")
		}
	}
	return ""
}

func imageList(doc *goquery.Document, selectors []string) string {
	seen := map[string]struct{}{}
	var urls []string
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range []string{"src", "data-src", "content", "href"} {
				v, ok := s.Attr(attr)
				if !ok || !strings.HasPrefix(v, "http") {
					continue
				}
				if _, dup := seen[v]; !dup {
					seen[v] = struct{}{}
					urls = append(urls, v)
				}
				return
			}
		})
		if len(urls) > 0 {
			break
		}
	}
	return strings.Join(urls, ",")
}

func sizeList(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var sizes []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := normalizeSpace(s.Text())
			if text == "" || strings.HasPrefix(strings.ToLower(text), "select") {
				return
			}
			sizes = append(sizes, text)
		})
		if len(sizes) > 0 {
			return strings.Join(sizes, ", ")
		}
	}
	return ""
}

func discountText(s string) string {
	if !strings.Contains(s, "%") {
		return ""
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
