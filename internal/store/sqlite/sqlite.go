// Package sqlite implements the search engine contract on SQLite. Term
// relevance is a weighted substring match per field; SQLite's LIKE is
// case-insensitive for ASCII, which matches the other dialects' behavior.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS search_index (
    product_variant_id       TEXT    NOT NULL,
    language_code            TEXT    NOT NULL,
    channel_id               TEXT    NOT NULL,
    product_id               TEXT    NOT NULL,
    enabled                  INTEGER NOT NULL DEFAULT 1,
    synthetic                INTEGER NOT NULL DEFAULT 0,
    product_name             TEXT    NOT NULL DEFAULT '',
    product_variant_name     TEXT    NOT NULL DEFAULT '',
    description              TEXT    NOT NULL DEFAULT '',
    slug                     TEXT    NOT NULL DEFAULT '',
    sku                      TEXT    NOT NULL DEFAULT '',
    price                    INTEGER NOT NULL DEFAULT 0,
    price_with_tax           INTEGER NOT NULL DEFAULT 0,
    currency_code            TEXT    NOT NULL DEFAULT '',
    facet_ids                TEXT    NOT NULL DEFAULT '',
    facet_value_ids          TEXT    NOT NULL DEFAULT '',
    collection_ids           TEXT    NOT NULL DEFAULT '',
    collection_slugs         TEXT    NOT NULL DEFAULT '',
    product_preview          TEXT    NOT NULL DEFAULT '',
    product_variant_preview  TEXT    NOT NULL DEFAULT '',
    product_asset_id         TEXT    NOT NULL DEFAULT '',
    product_variant_asset_id TEXT    NOT NULL DEFAULT '',
    updated_at               INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (product_variant_id, language_code, channel_id)
);
CREATE INDEX IF NOT EXISTS idx_search_index_scope ON search_index (channel_id, language_code);
CREATE INDEX IF NOT EXISTS idx_search_index_product ON search_index (channel_id, product_id);`

type Engine struct {
	db *sql.DB
}

var _ store.Engine = (*Engine)(nil)

func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// EnsureSchema creates the index table and its indexes if missing.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure search_index schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO search_index (
	product_variant_id, language_code, channel_id, product_id,
	enabled, synthetic, product_name, product_variant_name, description,
	slug, sku, price, price_with_tax, currency_code,
	facet_ids, facet_value_ids, collection_ids, collection_slugs,
	product_preview, product_variant_preview, product_asset_id, product_variant_asset_id,
	updated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (product_variant_id, language_code, channel_id) DO UPDATE SET
	product_id = excluded.product_id,
	enabled = excluded.enabled,
	synthetic = excluded.synthetic,
	product_name = excluded.product_name,
	product_variant_name = excluded.product_variant_name,
	description = excluded.description,
	slug = excluded.slug,
	sku = excluded.sku,
	price = excluded.price,
	price_with_tax = excluded.price_with_tax,
	currency_code = excluded.currency_code,
	facet_ids = excluded.facet_ids,
	facet_value_ids = excluded.facet_value_ids,
	collection_ids = excluded.collection_ids,
	collection_slugs = excluded.collection_slugs,
	product_preview = excluded.product_preview,
	product_variant_preview = excluded.product_variant_preview,
	product_asset_id = excluded.product_asset_id,
	product_variant_asset_id = excluded.product_variant_asset_id,
	updated_at = excluded.updated_at`

func (e *Engine) Upsert(ctx context.Context, rows []domain.IndexRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			r.ProductVariantID, r.LanguageCode, r.ChannelID, r.ProductID,
			r.Enabled, r.Synthetic, r.ProductName, r.VariantName, r.Description,
			r.Slug, r.SKU, r.Price, r.PriceWithTax, r.CurrencyCode,
			r.FacetIDs, r.FacetValueIDs, r.CollectionIDs, r.CollectionSlugs,
			r.ProductPreview, r.VariantPreview, r.ProductAssetID, r.VariantAssetID,
			updatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("upsert index row %s: %w", r.ProductVariantID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

func (e *Engine) DeleteByVariantIDs(ctx context.Context, channelID string, variantIDs []string) error {
	if len(variantIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(variantIDs)), ",")
	args := make([]any, 0, len(variantIDs)+1)
	args = append(args, channelID)
	for _, id := range variantIDs {
		args = append(args, id)
	}
	_, err := e.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM search_index WHERE channel_id = ? AND product_variant_id IN (%s)`, placeholders),
		args...,
	)
	if err != nil {
		return fmt.Errorf("delete index rows by variant: %w", err)
	}
	return nil
}

func (e *Engine) DeleteByProductID(ctx context.Context, channelID, productID string) error {
	_, err := e.db.ExecContext(ctx,
		`DELETE FROM search_index WHERE channel_id = ? AND product_id = ?`,
		channelID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete index rows by product: %w", err)
	}
	return nil
}

func (e *Engine) DeleteSyntheticRows(ctx context.Context, channelID, productID string) error {
	_, err := e.db.ExecContext(ctx,
		`DELETE FROM search_index WHERE channel_id = ? AND product_id = ? AND synthetic`,
		channelID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete synthetic rows: %w", err)
	}
	return nil
}

func (e *Engine) VariantRowCount(ctx context.Context, channelID, productID string) (int, error) {
	var n int
	err := e.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_index WHERE channel_id = ? AND product_id = ? AND NOT synthetic`,
		channelID, productID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count variant rows: %w", err)
	}
	return n, nil
}

func (e *Engine) DeleteStale(ctx context.Context, channelID, languageCode string, before time.Time) (int64, error) {
	query := `DELETE FROM search_index WHERE channel_id = ? AND updated_at < ?`
	args := []any{channelID, before.UnixNano()}
	if languageCode != "" {
		query += ` AND language_code = ?`
		args = append(args, languageCode)
	}
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale rows: %w", err)
	}
	return res.RowsAffected()
}

func (e *Engine) UpdateAsset(ctx context.Context, asset *domain.AssetSnapshot) error {
	_, err := e.db.ExecContext(ctx,
		`UPDATE search_index SET product_preview = ? WHERE product_asset_id = ?`,
		asset.Preview, asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update product asset: %w", err)
	}
	_, err = e.db.ExecContext(ctx,
		`UPDATE search_index SET product_variant_preview = ? WHERE product_variant_asset_id = ?`,
		asset.Preview, asset.ID,
	)
	if err != nil {
		return fmt.Errorf("update variant asset: %w", err)
	}
	return nil
}

func (e *Engine) RemoveAsset(ctx context.Context, assetID string) error {
	_, err := e.db.ExecContext(ctx,
		`UPDATE search_index SET product_asset_id = '', product_preview = '' WHERE product_asset_id = ?`,
		assetID,
	)
	if err != nil {
		return fmt.Errorf("remove product asset: %w", err)
	}
	_, err = e.db.ExecContext(ctx,
		`UPDATE search_index SET product_variant_asset_id = '', product_variant_preview = '' WHERE product_variant_asset_id = ?`,
		assetID,
	)
	if err != nil {
		return fmt.Errorf("remove variant asset: %w", err)
	}
	return nil
}
