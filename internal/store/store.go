// Package store defines the contracts between the index writer, the search
// strategies, and the underlying index row storage. One object per SQL
// dialect implements both interfaces against the same table.
package store

import (
	"context"
	"time"

	"github.com/shopforge/catalogsearch/internal/domain"
)

// SearchStrategy is the dialect-specific ranked-query engine. All four
// operations apply the same filter predicate; only the SQL they render
// differs. enabledOnly restricts results to enabled rows and is set by the
// public-facing query path.
type SearchStrategy interface {
	// SearchResults returns the ordered, paginated result rows.
	SearchResults(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) ([]domain.SearchResultRow, error)

	// TotalCount returns the unpaginated count of rows (or groups, when
	// grouping by product) matching the same predicate as SearchResults.
	TotalCount(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (int, error)

	// FacetValueIDs returns occurrence counts per facet value id across
	// the matching rows, ignoring pagination.
	FacetValueIDs(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error)

	// CollectionIDs returns occurrence counts per collection id across
	// the matching rows, ignoring pagination.
	CollectionIDs(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error)
}

// IndexStore is the write side of the index row table. Only the indexer
// calls these; strategies never mutate rows.
type IndexStore interface {
	// Upsert inserts or replaces rows keyed by
	// (product_variant_id, language_code, channel_id).
	Upsert(ctx context.Context, rows []domain.IndexRow) error

	// DeleteByVariantIDs removes all rows of the given variants in the
	// given channel, across languages.
	DeleteByVariantIDs(ctx context.Context, channelID string, variantIDs []string) error

	// DeleteByProductID removes all rows of a product in the given
	// channel, including any synthetic row.
	DeleteByProductID(ctx context.Context, channelID, productID string) error

	// DeleteSyntheticRows removes only the placeholder rows of a product
	// in the given channel. Called the moment a real variant appears.
	DeleteSyntheticRows(ctx context.Context, channelID, productID string) error

	// VariantRowCount returns the number of non-synthetic rows a product
	// has in the given channel.
	VariantRowCount(ctx context.Context, channelID, productID string) (int, error)

	// DeleteStale removes rows in the given scope last touched before the
	// cutoff. A full rebuild uses this to drop rows whose source entities
	// disappeared while the rebuild ran.
	DeleteStale(ctx context.Context, channelID, languageCode string, before time.Time) (int64, error)

	// UpdateAsset rewrites the stored preview URL on every row referencing
	// the asset.
	UpdateAsset(ctx context.Context, asset *domain.AssetSnapshot) error

	// RemoveAsset clears the stored preview on every row referencing the
	// asset.
	RemoveAsset(ctx context.Context, assetID string) error
}

// Engine is the combined read/write surface a dialect implementation
// provides.
type Engine interface {
	SearchStrategy
	IndexStore
}
