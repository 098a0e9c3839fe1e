package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/product-scraper/internal/product"
)

type ldProduct struct {
	Name        string
	Brand       string
	Description string
	Images      []string
	Price       string
}

// findProductLD returns the first schema.org Product found in the page's
// JSON-LD blocks. Malformed blocks are skipped.
func findProductLD(doc *goquery.Document) ldProduct {
	var found ldProduct
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		if obj, ok := locateProduct(raw); ok {
			found = toLDProduct(obj)
			return false
		}
		return true
	})
	return found
}

func locateProduct(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if obj, ok := locateProduct(item); ok {
				return obj, true
			}
		}
	case map[string]any:
		if isType(t["@type"], "Product") {
			return t, true
		}
		if graph, ok := t["@graph"]; ok {
			return locateProduct(graph)
		}
	}
	return nil, false
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if isType(item, want) {
				return true
			}
		}
	}
	return false
}

func toLDProduct(obj map[string]any) ldProduct {
	p := ldProduct{
		Name:        str(obj["name"]),
		Description: str(obj["description"]),
	}
	switch b := obj["brand"].(type) {
	case string:
		p.Brand = b
	case map[string]any:
		p.Brand = str(b["name"])
	}
	switch img := obj["image"].(type) {
	case string:
		p.Images = []string{img}
	case []any:
		for _, i := range img {
			if s := str(i); s != "" {
				p.Images = append(p.Images, s)
			}
		}
	}
	p.Price = offerPrice(obj["offers"])
	return p
}

func offerPrice(v any) string {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if price := offerPrice(item); price != "" {
				return price
			}
		}
	case map[string]any:
		price := str(t["price"])
		if price == "" {
			price = str(t["lowPrice"])
		}
		if price == "" {
			return ""
		}
		m, err := product.ParseMoney(price)
		if err != nil {
			return ""
		}
		m.Currency = strings.ToUpper(str(t["priceCurrency"]))
		return m.String()
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.2f", t)
	default:
		return ""
	}
}
