package dedup

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/product-scraper/internal/site"
)

var existsQuery = regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM lyst WHERE product_url = $1)")

func TestGate_AlreadyDone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		exists bool
	}{
		{name: "new url", exists: false},
		{name: "seen url", exists: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery(existsQuery).
				WithArgs("https://www.lyst.com/p/1").
				WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(tc.exists))

			done, err := NewGate(Config{}, nil).AlreadyDone(context.Background(), mock, site.Lyst, "https://www.lyst.com/p/1")
			require.NoError(t, err)
			assert.Equal(t, tc.exists, done)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGate_FailsOpenForUnknownSite(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	core, logs := observer.New(zap.WarnLevel)
	done, err := NewGate(Config{}, zap.New(core)).AlreadyDone(context.Background(), mock, site.Site("ebay"), "https://ebay.com/x")
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, logs.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGate_CachesOnlyPositiveAnswers(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	gate := NewGate(Config{CacheSize: 8, CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	// Negative answers hit the database every time.
	for i := 0; i < 2; i++ {
		mock.ExpectQuery(existsQuery).
			WithArgs("https://www.lyst.com/new").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	}
	mock.ExpectQuery(existsQuery).
		WithArgs("https://www.lyst.com/old").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	for i := 0; i < 2; i++ {
		done, err := gate.AlreadyDone(ctx, mock, site.Lyst, "https://www.lyst.com/new")
		require.NoError(t, err)
		assert.False(t, done)
	}
	for i := 0; i < 3; i++ {
		done, err := gate.AlreadyDone(ctx, mock, site.Lyst, "https://www.lyst.com/old")
		require.NoError(t, err)
		assert.True(t, done)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGate_PropagatesQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(existsQuery).WillReturnError(errors.New("conn reset"))

	_, err = NewGate(Config{}, nil).AlreadyDone(context.Background(), mock, site.Lyst, "https://www.lyst.com/p/1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
