package domain

import (
	"strings"
	"time"
)

// IndexRow is the denormalized projection of one (product variant, language,
// channel) triple that the search index stores and queries. Rows are written
// only by the indexer; query paths never mutate them.
type IndexRow struct {
	ProductVariantID string    `json:"product_variant_id"`
	LanguageCode     string    `json:"language_code"`
	ChannelID        string    `json:"channel_id"`
	ProductID        string    `json:"product_id"`
	Enabled          bool      `json:"enabled"`
	Synthetic        bool      `json:"synthetic"`
	ProductName      string    `json:"product_name"`
	VariantName      string    `json:"product_variant_name"`
	Description      string    `json:"description"`
	Slug             string    `json:"slug"`
	SKU              string    `json:"sku"`
	Price            int64     `json:"price"`
	PriceWithTax     int64     `json:"price_with_tax"`
	CurrencyCode     string    `json:"currency_code"`
	FacetIDs         string    `json:"facet_ids"`
	FacetValueIDs    string    `json:"facet_value_ids"`
	CollectionIDs    string    `json:"collection_ids"`
	CollectionSlugs  string    `json:"collection_slugs"`
	ProductPreview   string    `json:"product_preview"`
	VariantPreview   string    `json:"product_variant_preview"`
	ProductAssetID   string    `json:"product_asset_id"`
	VariantAssetID   string    `json:"product_variant_asset_id"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SyntheticVariantID returns the variant ID used for a product's placeholder
// row. A product with no variants stays discoverable through a single row
// that reuses the product's own identity.
func SyntheticVariantID(productID string) string {
	return productID
}

// JoinIDs serializes a list of identifiers into the delimited column format.
// Empty and whitespace-only entries are dropped.
func JoinIDs(ids []string) string {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			clean = append(clean, id)
		}
	}
	return strings.Join(clean, ",")
}

// SplitIDs parses a delimited identifier column. Malformed input never fails:
// empty segments are dropped, so a corrupted value degrades to a shorter (or
// empty) list rather than an error.
func SplitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// ContainsID reports whether the delimited column contains the exact
// identifier. Membership is a whole-token test, so "1" never matches a row
// tagged only with "10".
func ContainsID(column, id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range SplitIDs(column) {
		if candidate == id {
			return true
		}
	}
	return false
}

// UnionIDs merges several delimited columns into one deduplicated list,
// preserving first-seen order.
func UnionIDs(columns ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, col := range columns {
		for _, id := range SplitIDs(col) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
