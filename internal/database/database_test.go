package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/product-scraper/internal/site"
)

func TestStatementsCoverCatalogAndSiteTables(t *testing.T) {
	t.Parallel()

	stmts := Statements()
	require.Len(t, stmts, 1+len(site.All()))
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS product "))
	for i, s := range site.All() {
		stmt := stmts[i+1]
		assert.True(t, strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "+s.Table()+" "), stmt)
		assert.Contains(t, stmt, "REFERENCES product (id) ON DELETE CASCADE")
		assert.Regexp(t, `product_url\s+TEXT NOT NULL UNIQUE`, stmt)
		assert.NotContains(t, stmt, "--")
	}
}

func TestMigrateAppliesSchemaInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	for _, stmt := range Statements() {
		mock.ExpectExec(regexp.QuoteMeta(firstLine(stmt))).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	}
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stmts := Statements()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(firstLine(stmts[0]))).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(regexp.QuoteMeta(firstLine(stmts[1]))).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewPoolRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPool(context.Background(), Config{}, nil)
	require.Error(t, err)
}
