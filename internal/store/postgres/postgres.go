// Package postgres implements the search engine contract on PostgreSQL.
// Term matching combines full-text matching on the name and description
// columns with a substring match on the SKU, which carries the highest
// weight.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/store"
)

// Migrations holds the schema for the index row table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// DB is the subset of pgxpool.Pool the engine uses. pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Engine struct {
	db DB
}

var _ store.Engine = (*Engine)(nil)

func New(db DB) *Engine {
	return &Engine{db: db}
}

const upsertSQL = `
INSERT INTO search_index (
	product_variant_id, language_code, channel_id, product_id,
	enabled, synthetic, product_name, product_variant_name, description,
	slug, sku, price, price_with_tax, currency_code,
	facet_ids, facet_value_ids, collection_ids, collection_slugs,
	product_preview, product_variant_preview, product_asset_id, product_variant_asset_id,
	updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
ON CONFLICT (product_variant_id, language_code, channel_id) DO UPDATE SET
	product_id = EXCLUDED.product_id,
	enabled = EXCLUDED.enabled,
	synthetic = EXCLUDED.synthetic,
	product_name = EXCLUDED.product_name,
	product_variant_name = EXCLUDED.product_variant_name,
	description = EXCLUDED.description,
	slug = EXCLUDED.slug,
	sku = EXCLUDED.sku,
	price = EXCLUDED.price,
	price_with_tax = EXCLUDED.price_with_tax,
	currency_code = EXCLUDED.currency_code,
	facet_ids = EXCLUDED.facet_ids,
	facet_value_ids = EXCLUDED.facet_value_ids,
	collection_ids = EXCLUDED.collection_ids,
	collection_slugs = EXCLUDED.collection_slugs,
	product_preview = EXCLUDED.product_preview,
	product_variant_preview = EXCLUDED.product_variant_preview,
	product_asset_id = EXCLUDED.product_asset_id,
	product_variant_asset_id = EXCLUDED.product_variant_asset_id,
	updated_at = EXCLUDED.updated_at`

func (e *Engine) Upsert(ctx context.Context, rows []domain.IndexRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		batch.Queue(upsertSQL,
			r.ProductVariantID, r.LanguageCode, r.ChannelID, r.ProductID,
			r.Enabled, r.Synthetic, r.ProductName, r.VariantName, r.Description,
			r.Slug, r.SKU, r.Price, r.PriceWithTax, r.CurrencyCode,
			r.FacetIDs, r.FacetValueIDs, r.CollectionIDs, r.CollectionSlugs,
			r.ProductPreview, r.VariantPreview, r.ProductAssetID, r.VariantAssetID,
			updatedAt,
		)
	}
	results := e.db.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert index rows: %w", err)
		}
	}
	return nil
}

func (e *Engine) DeleteByVariantIDs(ctx context.Context, channelID string, variantIDs []string) error {
	if len(variantIDs) == 0 {
		return nil
	}
	_, err := e.db.Exec(ctx,
		`DELETE FROM search_index WHERE channel_id = $1 AND product_variant_id = ANY($2)`,
		channelID, variantIDs,
	)
	if err != nil {
		return fmt.Errorf("delete index rows by variant: %w", err)
	}
	return nil
}

func (e *Engine) DeleteByProductID(ctx context.Context, channelID, productID string) error {
	_, err := e.db.Exec(ctx,
		`DELETE FROM search_index WHERE channel_id = $1 AND product_id = $2`,
		channelID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete index rows by product: %w", err)
	}
	return nil
}

func (e *Engine) DeleteSyntheticRows(ctx context.Context, channelID, productID string) error {
	_, err := e.db.Exec(ctx,
		`DELETE FROM search_index WHERE channel_id = $1 AND product_id = $2 AND synthetic`,
		channelID, productID,
	)
	if err != nil {
		return fmt.Errorf("delete synthetic rows: %w", err)
	}
	return nil
}

func (e *Engine) VariantRowCount(ctx context.Context, channelID, productID string) (int, error) {
	var n int
	err := e.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_index WHERE channel_id = $1 AND product_id = $2 AND NOT synthetic`,
		channelID, productID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count variant rows: %w", err)
	}
	return n, nil
}

func (e *Engine) DeleteStale(ctx context.Context, channelID, languageCode string, before time.Time) (int64, error) {
	sql := `DELETE FROM search_index WHERE channel_id = $1 AND updated_at < $2`
	args := []any{channelID, before}
	if languageCode != "" {
		sql += ` AND language_code = $3`
		args = append(args, languageCode)
	}
	tag, err := e.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (e *Engine) UpdateAsset(ctx context.Context, asset *domain.AssetSnapshot) error {
	_, err := e.db.Exec(ctx,
		`UPDATE search_index SET product_preview = $2 WHERE product_asset_id = $1`,
		asset.ID, asset.Preview,
	)
	if err != nil {
		return fmt.Errorf("update product asset: %w", err)
	}
	_, err = e.db.Exec(ctx,
		`UPDATE search_index SET product_variant_preview = $2 WHERE product_variant_asset_id = $1`,
		asset.ID, asset.Preview,
	)
	if err != nil {
		return fmt.Errorf("update variant asset: %w", err)
	}
	return nil
}

func (e *Engine) RemoveAsset(ctx context.Context, assetID string) error {
	_, err := e.db.Exec(ctx,
		`UPDATE search_index SET product_asset_id = '', product_preview = '' WHERE product_asset_id = $1`,
		assetID,
	)
	if err != nil {
		return fmt.Errorf("remove product asset: %w", err)
	}
	_, err = e.db.Exec(ctx,
		`UPDATE search_index SET product_variant_asset_id = '', product_variant_preview = '' WHERE product_variant_asset_id = $1`,
		assetID,
	)
	if err != nil {
		return fmt.Errorf("remove variant asset: %w", err)
	}
	return nil
}
