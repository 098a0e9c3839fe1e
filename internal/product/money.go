package product

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrNoAmount is returned when a price string carries no digits.
	ErrNoAmount = errors.New("price has no amount")
	// ErrAmountOverflow is returned when the amount does not fit in cents.
	ErrAmountOverflow = errors.New("price amount overflows")
)

// Money is an amount in minor units (cents) with an ISO currency code.
// Currency may be empty when the source string carried no marker.
type Money struct {
	Amount   int64
	Currency string
}

var currencyMarkers = []struct {
	marker string
	code   string
}{
	// Longer markers first so "US$" wins over "$".
	{"AED", "AED"},
	{"د.إ", "AED"},
	{"USD", "USD"},
	{"US$", "USD"},
	{"GBP", "GBP"},
	{"EUR", "EUR"},
	{"£", "GBP"},
	{"€", "EUR"},
	{"$", "USD"},
}

var currencySymbols = map[string]string{
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
}

// ParseMoney parses a display price such as "$1,250.00", "1.250,00 €",
// or "AED 3,400".
func ParseMoney(s string) (Money, error) {
	upper := strings.ToUpper(s)
	var m Money
	for _, cm := range currencyMarkers {
		if strings.Contains(upper, cm.marker) {
			m.Currency = cm.code
			break
		}
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	digits := strings.Trim(b.String(), ".,")
	if digits == "" {
		return Money{}, fmt.Errorf("%q: %w", s, ErrNoAmount)
	}

	whole, frac := splitDecimal(digits)
	whole = strings.NewReplacer(".", "", ",", "").Replace(whole)
	if whole == "" {
		whole = "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents := int64(0)
	if frac != "" {
		if len(frac) == 1 {
			frac += "0"
		}
		cents, err = strconv.ParseInt(frac[:2], 10, 64)
		if err != nil {
			return Money{}, fmt.Errorf("parse cents %q: %w", s, err)
		}
	}
	if units > (math.MaxInt64-cents)/100 {
		return Money{}, fmt.Errorf("%q: %w", s, ErrAmountOverflow)
	}
	m.Amount = units*100 + cents
	return m, nil
}

// splitDecimal separates the integer and fractional parts. When both
// separators appear the last one is decimal. A lone separator is decimal
// only if it occurs once and is followed by one or two digits.
func splitDecimal(digits string) (string, string) {
	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")
	if lastDot >= 0 && lastComma >= 0 {
		idx := max(lastDot, lastComma)
		return digits[:idx], digits[idx+1:]
	}
	idx := max(lastDot, lastComma)
	if idx < 0 {
		return digits, ""
	}
	sep := digits[idx : idx+1]
	tail := digits[idx+1:]
	if strings.Count(digits, sep) == 1 && len(tail) >= 1 && len(tail) <= 2 {
		return digits[:idx], tail
	}
	return digits, ""
}

// String renders m with its currency symbol, or code prefix when no symbol
// is known.
func (m Money) String() string {
	amount := fmt.Sprintf("%d.%02d", m.Amount/100, m.Amount%100)
	if sym, ok := currencySymbols[m.Currency]; ok {
		return sym + amount
	}
	if m.Currency != "" {
		return m.Currency + " " + amount
	}
	return amount
}

// Discount returns the "-NN%" markdown from original to sale. It reports
// false unless both share a currency and original exceeds sale.
func Discount(original, sale Money) (string, bool) {
	if original.Currency != sale.Currency {
		return "", false
	}
	if original.Amount <= 0 || sale.Amount < 0 || original.Amount <= sale.Amount {
		return "", false
	}
	pct := math.Round(float64(original.Amount-sale.Amount) * 100 / float64(original.Amount))
	return fmt.Sprintf("-%d%%", int64(pct)), true
}

// ApplyDiscount returns original reduced by percent, rounded to the cent.
func ApplyDiscount(original Money, percent int) Money {
	reduced := math.Round(float64(original.Amount) * float64(100-percent) / 100)
	return Money{Amount: int64(reduced), Currency: original.Currency}
}

// FillPricing derives the discount or sale price when the extractor left
// one of them out, and copies the original price into the matching
// per-currency column when that column is empty.
func FillPricing(rec Record) {
	original, origErr := ParseMoney(rec[FieldOriginalPrice])
	if origErr != nil {
		return
	}
	if col := currencyColumn(original.Currency); col != "" && rec[col] == "" {
		rec[col] = rec[FieldOriginalPrice]
	}

	sale, saleErr := ParseMoney(rec[FieldSalePrice])
	switch {
	case saleErr == nil && rec[FieldDiscount] == "":
		if d, ok := Discount(original, sale); ok {
			rec[FieldDiscount] = d
		}
	case saleErr != nil && rec[FieldDiscount] != "":
		if pct, ok := discountPercent(rec[FieldDiscount]); ok {
			rec[FieldSalePrice] = ApplyDiscount(original, pct).String()
		}
	}
}

func currencyColumn(code string) string {
	switch code {
	case "AED":
		return FieldPriceAED
	case "USD":
		return FieldPriceUSD
	case "GBP":
		return FieldPriceGBP
	case "EUR":
		return FieldPriceEUR
	default:
		return ""
	}
}

func discountPercent(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		} else if b.Len() > 0 {
			break
		}
	}
	pct, err := strconv.Atoi(b.String())
	if err != nil || pct <= 0 || pct >= 100 {
		return 0, false
	}
	return pct, true
}
