package extract

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/site"
)

// Generic fallbacks appended to every site's selector chain.
var generic = Selectors{
	Brand:         []string{`[itemprop="brand"]`, `[data-testid="product-brand"]`, `.product-brand`},
	Name:          []string{`h1[itemprop="name"]`, `[data-testid="product-name"]`, `h1`},
	Details:       []string{`[itemprop="description"]`, `[data-testid="product-details"]`, `.product-details-content`},
	Category:      []string{`nav[aria-label="breadcrumb"] li`, `.breadcrumb li`, `[data-testid="breadcrumb"] span`},
	Images:        []string{`meta[property="og:image"]`, `.product-image img`},
	OriginalPrice: []string{`[data-testid="price-original"]`, `.price--original`, `[itemprop="price"]`, `.price`},
	SalePrice:     []string{`[data-testid="price-sale"]`, `.price--sale`},
	Discount:      []string{`[data-testid="discount"]`, `.discount`, `span[class*="discount"]`},
	SizeAndFit:    []string{`select[name*="size"] option`, `[data-testid="size-selector"] li`},
}

var siteSelectors = map[site.Site]Selectors{
	site.Farfetch: {
		Brand:         []string{`a[data-component="LinkGhostDark"] h1`, `[data-testid="product-brand"]`},
		Name:          []string{`p[data-testid="product-short-description"]`},
		Details:       []string{`div[data-testid="product-information-accordion"]`},
		Category:      []string{`ol[data-component="Breadcrumbs"] li`},
		Images:        []string{`div[data-testid="image-carousel"] img`, `img[data-component="Img"]`},
		OriginalPrice: []string{`p[data-component="PriceOriginal"]`, `p[data-component="PriceLarge"]`},
		SalePrice:     []string{`p[data-component="PriceFinalLarge"]`},
		Discount:      []string{`p[data-component="PriceDiscount"]`},
		SizeAndFit:    []string{`div[data-component="SizeSelectorLabel"]`},
	},
	site.Lyst: {
		Brand:         []string{`a.W2cCC[href*="/designer/"]`, `a[href*="/designer/"]`},
		Name:          []string{`div._1b08vvhqu.vjlibs5.vjlibs2`, `div[class*="_1b08vvhqu"]`},
		Details:       []string{`div._1b08vvh31.vjlibs2`, `div[class*="_1b08vvh31"]`},
		Category:      []string{`ol._17myytj0 li._17myytj1 span._17myytj2`, `ol[class*="_17myytj0"] span[class*="_17myytj2"]`},
		Images:        []string{`img.qptelu3`, `img[class*="qptelu"]`, `img[src*="lystit.com"]`},
		OriginalPrice: []string{`div._1b08vvhrq.vjlibs2`, `div[class*="_1b08vvhrq"]`},
		Discount:      []string{`.sale-percentage`, `.price-reduction`},
	},
	site.Modesens: {
		Brand:         []string{`a.brand-name`, `.designer-name a`},
		Name:          []string{`h1.product-name`, `.prd-name`},
		Details:       []string{`.product-description`},
		Images:        []string{`.product-images img`, `img.prd-img`},
		OriginalPrice: []string{`.price-box .original-price`, `.price-box .price`},
		SalePrice:     []string{`.price-box .sale-price`},
	},
	site.Reversible: {
		Brand:         []string{`.product__vendor`, `.product-vendor`},
		Name:          []string{`h1.product__title`, `.product-single__title`},
		Details:       []string{`.product__description`, `.product-single__description`},
		Images:        []string{`.product__media img`, `.product-single__photo img`},
		OriginalPrice: []string{`.price__compare`, `s.price-item--regular`},
		SalePrice:     []string{`.price-item--sale`, `.price__sale`},
		SizeAndFit:    []string{`fieldset[name*="Size"] label`},
	},
	site.Italist: {
		Brand:         []string{`.brand-name`, `h2.brand`},
		Name:          []string{`h1.model`, `.product-name`},
		Details:       []string{`.product-details`, `.description-content`},
		Category:      []string{`.breadcrumbs a`},
		Images:        []string{`.product-gallery img`, `img.product-image`},
		OriginalPrice: []string{`.old-price`, `.price-original`},
		SalePrice:     []string{`.sales-price`, `.price-final`},
		Discount:      []string{`.discount-percentage`},
		SizeAndFit:    []string{`.size-selector li`},
	},
	site.Leam: {
		Brand:         []string{`h2 a[href*="/designers/"]`},
		Name:          []string{`h1.page-title span`, `h1.page-title`},
		Details:       []string{`.product.attribute.description .value`},
		Category:      []string{`.breadcrumbs li`},
		Images:        []string{`.fotorama__img`, `.gallery-placeholder img`},
		OriginalPrice: []string{`span[data-price-type="oldPrice"] .price`, `.old-price .price`},
		SalePrice:     []string{`span[data-price-type="finalPrice"] .price`, `.special-price .price`},
		Discount:      []string{`span.discountproductpage`, `.discountproductpage`},
		SizeAndFit:    []string{`.swatch-option.text`},
	},
	site.Selfridge: {
		Brand:         []string{`[data-analytics-component="brand_name"]`, `a.c-product-hero__brand`},
		Name:          []string{`[data-analytics-component="product_name"]`, `.c-product-hero__name`},
		Details:       []string{`.c-product-details__description`, `[data-testid="description"]`},
		Category:      []string{`.c-breadcrumb li`},
		Images:        []string{`img[src*="selfridges"]`, `.c-image-gallery img`},
		OriginalPrice: []string{`.c-product-hero__was-price`, `[data-testid="was-price"]`},
		SalePrice:     []string{`.c-product-hero__now-price`, `[data-testid="now-price"]`},
		SizeAndFit:    []string{`.c-select-size li`},
	},
}

// Registry maps each site to its extractor.
type Registry struct {
	extractors map[site.Site]Extractor
}

// NewRegistry builds DOM extractors for every supported site.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{extractors: make(map[site.Site]Extractor, len(site.All()))}
	for _, s := range site.All() {
		r.extractors[s] = NewDOM(s, merge(siteSelectors[s], generic), logger.With(zap.String("site", s.String())))
	}
	return r
}

// NewRegistryFrom wraps an explicit site-to-extractor mapping.
func NewRegistryFrom(extractors map[site.Site]Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// For returns the extractor for s.
func (r *Registry) For(s site.Site) (Extractor, bool) {
	e, ok := r.extractors[s]
	return e, ok
}

func merge(specific, fallback Selectors) Selectors {
	return Selectors{
		Brand:         concat(specific.Brand, fallback.Brand),
		Name:          concat(specific.Name, fallback.Name),
		Details:       concat(specific.Details, fallback.Details),
		Category:      concat(specific.Category, fallback.Category),
		Images:        concat(specific.Images, fallback.Images),
		OriginalPrice: concat(specific.OriginalPrice, fallback.OriginalPrice),
		SalePrice:     concat(specific.SalePrice, fallback.SalePrice),
		Discount:      concat(specific.Discount, fallback.Discount),
		SizeAndFit:    concat(specific.SizeAndFit, fallback.SizeAndFit),
	}
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
