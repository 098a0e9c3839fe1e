package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want Site
		ok   bool
	}{
		{name: "farfetch", url: "https://www.farfetch.com/shopping/women/bag-item-123.aspx", want: Farfetch, ok: true},
		{name: "lyst", url: "https://www.lyst.com/clothing/acme-shirt-1/", want: Lyst, ok: true},
		{name: "selfridges plural", url: "https://www.selfridges.com/GB/en/cat/x_R123/", want: Selfridge, ok: true},
		{name: "case insensitive", url: "https://WWW.ITALIST.COM/us/x", want: Italist, ok: true},
		{name: "first match wins", url: "https://www.lyst.com/redirect?to=farfetch", want: Farfetch, ok: true},
		{name: "unsupported", url: "https://example.com/p/1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := FromURL(tt.url)
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse(" Leam ")
	require.NoError(t, err)
	assert.Equal(t, Leam, got)

	_, err = Parse("zalando")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported site")
}

func TestRegistryCoversAllSites(t *testing.T) {
	t.Parallel()

	require.Len(t, All(), 7)
	for _, s := range All() {
		info, ok := s.Info()
		require.True(t, ok, s)
		assert.NotEmpty(t, info.Table, s)
		assert.NotNil(t, info.ProductPath, s)
	}
	assert.Empty(t, Site("unknown").Table())
	assert.False(t, Site("").Valid())
}
