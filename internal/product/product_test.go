package product

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "paragraph", input: "<p>Nice</p>", want: "Nice"},
		{name: "nested", input: "<div><p>Soft <b>leather</b></p><p>Made in Italy</p></div>", want: "Soft leather Made in Italy"},
		{name: "line breaks", input: "Line one<br>Line two", want: "Line one Line two"},
		{name: "script dropped", input: "<p>Keep</p><script>var x = 1;</script>", want: "Keep"},
		{name: "plain input", input: "already plain", want: "already plain"},
		{name: "empty", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := PlainText(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThumbnail(t *testing.T) {
	t.Parallel()

	got, ok := Thumbnail("https://cdn.example.com/a.JPG?w=10,https://cdn.example.com/b.png")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.JPG", got)

	_, ok = Thumbnail("u1,u2")
	assert.False(t, ok)

	got, ok = Thumbnail(`["https://img.example.com/x/y.webp", "https://img.example.com/z.svg"]`)
	require.True(t, ok)
	assert.Equal(t, "https://img.example.com/x/y.webp", got)
}

func TestFilterKeepsAllowListInTableOrder(t *testing.T) {
	t.Parallel()

	cols := Filter(Record{
		FieldSalePrice:   "$80",
		"tracking_pixel": "drop me",
		FieldProductName: "Shoe v1",
		FieldProductURL:  "https://site.example/p/1",
	})

	require.Len(t, cols, 3)
	assert.Equal(t, FieldProductURL, cols[0].Name)
	assert.Equal(t, FieldProductName, cols[1].Name)
	assert.Equal(t, FieldSalePrice, cols[2].Name)
}

func TestParseMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Money
	}{
		{input: "$100", want: Money{Amount: 10000, Currency: "USD"}},
		{input: "$1,250.50", want: Money{Amount: 125050, Currency: "USD"}},
		{input: "1.250,00 €", want: Money{Amount: 125000, Currency: "EUR"}},
		{input: "£99.9", want: Money{Amount: 9990, Currency: "GBP"}},
		{input: "AED 3,400", want: Money{Amount: 340000, Currency: "AED"}},
		{input: "US$ 1,000,000", want: Money{Amount: 100000000, Currency: "USD"}},
		{input: "450", want: Money{Amount: 45000}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMoney(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseMoney("Sold out")
	require.ErrorIs(t, err, ErrNoAmount)
}

func TestParseMoneyRejectsAmountsBeyondInt64Cents(t *testing.T) {
	t.Parallel()

	got, err := ParseMoney("$92233720368547758.07")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.Amount)

	for _, input := range []string{"$92233720368547758.08", "$100000000000000000", "€ 1.000.000.000.000.000.000,00"} {
		_, err := ParseMoney(input)
		require.ErrorIs(t, err, ErrAmountOverflow, input)
	}
}

func TestDiscount(t *testing.T) {
	t.Parallel()

	d, ok := Discount(Money{Amount: 10000, Currency: "USD"}, Money{Amount: 7000, Currency: "USD"})
	require.True(t, ok)
	assert.Equal(t, "-30%", d)

	_, ok = Discount(Money{Amount: 10000, Currency: "USD"}, Money{Amount: 10000, Currency: "USD"})
	assert.False(t, ok)

	_, ok = Discount(Money{Amount: 10000, Currency: "USD"}, Money{Amount: 7000, Currency: "EUR"})
	assert.False(t, ok)
}

func TestFillPricing(t *testing.T) {
	t.Parallel()

	rec := Record{FieldOriginalPrice: "$100", FieldSalePrice: "$75"}
	FillPricing(rec)
	assert.Equal(t, "-25%", rec[FieldDiscount])
	assert.Equal(t, "$100", rec[FieldPriceUSD])

	rec = Record{FieldOriginalPrice: "£200.00", FieldDiscount: "50%"}
	FillPricing(rec)
	assert.Equal(t, "£100.00", rec[FieldSalePrice])
	assert.Equal(t, "£200.00", rec[FieldPriceGBP])

	rec = Record{FieldOriginalPrice: "$100", FieldPriceUSD: "$110"}
	FillPricing(rec)
	assert.Equal(t, "$110", rec[FieldPriceUSD])
	assert.Empty(t, rec[FieldDiscount])
}
