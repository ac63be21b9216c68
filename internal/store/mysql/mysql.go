// Package mysql implements the search engine contract on MySQL/MariaDB.
// Term relevance uses FULLTEXT MATCH ... AGAINST on the name and description
// columns, with a substring match on the SKU carrying the highest weight.
package mysql

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
    product_variant_id       VARCHAR(64)  NOT NULL,
    language_code            VARCHAR(16)  NOT NULL,
    channel_id               VARCHAR(64)  NOT NULL,
    product_id               VARCHAR(64)  NOT NULL,
    enabled                  BOOLEAN      NOT NULL DEFAULT TRUE,
    synthetic                BOOLEAN      NOT NULL DEFAULT FALSE,
    product_name             VARCHAR(512) NOT NULL DEFAULT '',
    product_variant_name     VARCHAR(512) NOT NULL DEFAULT '',
    description              TEXT         NOT NULL,
    slug                     VARCHAR(512) NOT NULL DEFAULT '',
    sku                      VARCHAR(128) NOT NULL DEFAULT '',
    price                    BIGINT       NOT NULL DEFAULT 0,
    price_with_tax           BIGINT       NOT NULL DEFAULT 0,
    currency_code            VARCHAR(8)   NOT NULL DEFAULT '',
    facet_ids                TEXT         NOT NULL,
    facet_value_ids          TEXT         NOT NULL,
    collection_ids           TEXT         NOT NULL,
    collection_slugs         TEXT         NOT NULL,
    product_preview          VARCHAR(1024) NOT NULL DEFAULT '',
    product_variant_preview  VARCHAR(1024) NOT NULL DEFAULT '',
    product_asset_id         VARCHAR(64)  NOT NULL DEFAULT '',
    product_variant_asset_id VARCHAR(64)  NOT NULL DEFAULT '',
    updated_at               TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,

    PRIMARY KEY (product_variant_id, language_code, channel_id),
    KEY idx_search_index_scope (channel_id, language_code),
    KEY idx_search_index_product (channel_id, product_id),
    FULLTEXT KEY ft_product_name (product_name),
    FULLTEXT KEY ft_variant_name (product_variant_name),
    FULLTEXT KEY ft_description (description)
)`

type Engine struct {
	db *sql.DB
}

var _ store.Engine = (*Engine)(nil)

func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// EnsureSchema creates the index table and its FULLTEXT indexes if missing.
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
ON DUPLICATE KEY UPDATE
	product_id = VALUES(product_id),
	enabled = VALUES(enabled),
	synthetic = VALUES(synthetic),
	product_name = VALUES(product_name),
	product_variant_name = VALUES(product_variant_name),
	description = VALUES(description),
	slug = VALUES(slug),
	sku = VALUES(sku),
	price = VALUES(price),
	price_with_tax = VALUES(price_with_tax),
	currency_code = VALUES(currency_code),
	facet_ids = VALUES(facet_ids),
	facet_value_ids = VALUES(facet_value_ids),
	collection_ids = VALUES(collection_ids),
	collection_slugs = VALUES(collection_slugs),
	product_preview = VALUES(product_preview),
	product_variant_preview = VALUES(product_variant_preview),
	product_asset_id = VALUES(product_asset_id),
	product_variant_asset_id = VALUES(product_variant_asset_id),
	updated_at = VALUES(updated_at)`

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
			updatedAt,
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
	args := []any{channelID, before}
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
