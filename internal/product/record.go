// Package product defines the catalog and site-variant records and the
// normalization helpers applied to them before persistence.
package product

// Record is a normalized extractor result keyed by common product field
// names. Keys outside SiteColumns are tolerated and dropped on persistence.
type Record map[string]string

// Common record field names.
const (
	FieldProductURL     = "product_url"
	FieldBrand          = "brand"
	FieldProductName    = "product_name"
	FieldProductDetails = "product_details"
	FieldCategory       = "category"
	FieldThumbnail      = "thumbnail"
	FieldImageURLs      = "image_urls"
	FieldOriginalPrice  = "original_price"
	FieldSalePrice      = "sale_price"
	FieldDiscount       = "discount"
	FieldPriceAED       = "price_aed"
	FieldPriceUSD       = "price_usd"
	FieldPriceGBP       = "price_gbp"
	FieldPriceEUR       = "price_eur"
	FieldSizeAndFit     = "size_and_fit"
)

// SiteColumns is the allow-list of SiteProductRecord columns, in table order.
var SiteColumns = []string{
	FieldProductURL,
	FieldBrand,
	FieldProductName,
	FieldProductDetails,
	FieldCategory,
	FieldThumbnail,
	FieldImageURLs,
	FieldOriginalPrice,
	FieldSalePrice,
	FieldDiscount,
	FieldPriceAED,
	FieldPriceUSD,
	FieldPriceGBP,
	FieldPriceEUR,
	FieldSizeAndFit,
}

// Catalog is the canonical product owned by the calling system.
type Catalog struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	ImageURLs   string `json:"image_urls"`
}

// Column is one site-table column and its value.
type Column struct {
	Name  string
	Value string
}

// Filter restricts rec to SiteColumns, preserving table order.
// Empty values are kept so explicit blanks survive.
func Filter(rec Record) []Column {
	cols := make([]Column, 0, len(SiteColumns))
	for _, name := range SiteColumns {
		value, ok := rec[name]
		if !ok {
			continue
		}
		cols = append(cols, Column{Name: name, Value: value})
	}
	return cols
}

// Clone returns a shallow copy of rec.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
