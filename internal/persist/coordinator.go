// Package persist writes a scraped product and its catalog row atomically.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/database"
	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

const uniqueViolation = "23505"

const upsertCatalog = `
	INSERT INTO product (id, title, brand, description, thumbnail, images)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		brand = EXCLUDED.brand,
		description = EXCLUDED.description,
		images = EXCLUDED.images,
		updated_at = NOW()
`

// Execer is satisfied by pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Coordinator owns the write contract for scraped products.
type Coordinator struct {
	logger *zap.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{logger: logger.Named("persist")}
}

// Persist runs Upsert in its own transaction on q. The transaction is
// rolled back unless the commit succeeds.
func (c *Coordinator) Persist(
	ctx context.Context,
	q database.Querier,
	s site.Site,
	url string,
	rec product.Record,
	catalog product.Catalog,
) (err error) {
	tx, err := q.Begin(ctx)
	if err != nil {
		return scraper.NewError(scraper.KindConnection, "begin transaction", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			c.logger.Warn("rollback failed", zap.String("url", url), zap.Error(rbErr))
		}
	}()

	if err := c.Upsert(ctx, tx, s, url, rec, catalog); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s row: %w", s, err)
	}
	committed = true
	return nil
}

// Upsert writes the catalog row and the site row on tx. The caller commits.
// A unique violation on the site row is reported as scraper.ErrDuplicate.
func (c *Coordinator) Upsert(
	ctx context.Context,
	tx Execer,
	s site.Site,
	url string,
	rec product.Record,
	catalog product.Catalog,
) error {
	table := s.Table()
	if table == "" {
		return scraper.Permanentf("persist", "unsupported site %q", s)
	}
	if catalog.ID == "" {
		return scraper.Permanentf("persist", "catalog id is required")
	}

	description := catalog.Description
	if plain, err := product.PlainText(description); err == nil {
		description = plain
	} else {
		c.logger.Warn("description not parseable, storing as-is", zap.String("catalog_id", catalog.ID), zap.Error(err))
	}
	thumbnail := catalog.Thumbnail
	if thumbnail == "" {
		thumbnail, _ = product.Thumbnail(catalog.ImageURLs)
	}
	if _, err := tx.Exec(ctx, upsertCatalog,
		catalog.ID,
		catalog.Title,
		catalog.Brand,
		description,
		thumbnail,
		catalog.ImageURLs,
	); err != nil {
		return fmt.Errorf("upsert catalog %s: %w", catalog.ID, err)
	}

	query, args := siteInsert(table, url, rec, catalog.ID)
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return scraper.NewError(scraper.KindDuplicate, "insert "+table, err)
		}
		return fmt.Errorf("insert %s row: %w", table, err)
	}
	return nil
}

// siteInsert builds the site-row insert from the column allow-list.
func siteInsert(table, url string, rec product.Record, catalogID string) (string, []any) {
	row := rec.Clone()
	if row == nil {
		row = product.Record{}
	}
	row[product.FieldProductURL] = url
	if thumb, ok := product.Thumbnail(row[product.FieldImageURLs]); ok {
		row[product.FieldThumbnail] = thumb
	}

	cols := product.Filter(row)
	names := make([]string, 0, len(cols)+1)
	placeholders := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+1)

	names = append(names, "medusa_id")
	placeholders = append(placeholders, "$1")
	args = append(args, catalogID)
	for i, col := range cols {
		names = append(names, col.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		args = append(args, col.Value)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	return query, args
}
