package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopforge/catalogsearch/internal/domain"
)

// queryBuilder accumulates positional arguments while SQL fragments are
// assembled, so every fragment references the right $n placeholder.
type queryBuilder struct {
	args []any
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// memberOf renders the whole-token membership test against a delimited id
// column. The column is wrapped in delimiters before matching so id "1"
// never matches a row tagged only with "10".
func (b *queryBuilder) memberOf(column, id string) string {
	p := b.bind(id)
	return fmt.Sprintf(`(',' || %s || ',') LIKE ('%%,' || %s || ',%%')`, column, p)
}

// scoreExpr renders the weighted relevance expression for a term. The SKU is
// matched as a substring; the name and description columns use full-text
// matching.
func (b *queryBuilder) scoreExpr(term string) string {
	p := b.bind(term)
	return fmt.Sprintf(`(
		CASE WHEN sku ILIKE '%%' || %[1]s || '%%' THEN %[2]g ELSE 0 END
		+ CASE WHEN to_tsvector('simple', product_name) @@ plainto_tsquery('simple', %[1]s) THEN %[3]g ELSE 0 END
		+ CASE WHEN to_tsvector('simple', product_variant_name) @@ plainto_tsquery('simple', %[1]s) THEN %[4]g ELSE 0 END
		+ CASE WHEN to_tsvector('simple', description) @@ plainto_tsquery('simple', %[1]s) THEN %[5]g ELSE 0 END
	)`, p, domain.WeightSKU, domain.WeightProductName, domain.WeightVariantName, domain.WeightDescription)
}

// where renders the shared filter predicate and the score select expression.
func (b *queryBuilder) where(q *domain.SearchQuery, enabledOnly bool) (pred, score string) {
	conds := []string{
		"channel_id = " + b.bind(q.ChannelID),
	}
	if q.LanguageCode != "" {
		conds = append(conds, "language_code = "+b.bind(q.LanguageCode))
	}
	if enabledOnly && !q.GroupByProduct {
		conds = append(conds, "enabled")
	}
	for _, fv := range q.FacetValueIDs {
		conds = append(conds, b.memberOf("facet_value_ids", fv))
	}
	if q.CollectionID != "" {
		conds = append(conds, b.memberOf("collection_ids", q.CollectionID))
	}
	if q.CollectionSlug != "" {
		conds = append(conds, b.memberOf("collection_slugs", q.CollectionSlug))
	}

	score = "0::float8"
	if term := q.EffectiveTerm(); term != "" {
		score = b.scoreExpr(term)
		conds = append(conds, score+" > 0")
	}
	return strings.Join(conds, " AND "), score
}

const ungroupedColumns = `product_id, product_variant_id, product_name, product_variant_name,
	description, slug, sku, enabled, currency_code,
	price, price_with_tax,
	facet_ids, facet_value_ids, collection_ids,
	product_preview, product_variant_preview`

// selectSQL renders the full result query without pagination. Grouped mode
// collapses variants into one row per product; the product-level columns are
// identical within a group, so MIN picks them cheaply.
func selectSQL(b *queryBuilder, q *domain.SearchQuery, enabledOnly bool) string {
	pred, score := b.where(q, enabledOnly)

	if !q.GroupByProduct {
		return fmt.Sprintf(
			`SELECT %s, %s AS score FROM search_index WHERE %s`,
			ungroupedColumns, score, pred,
		)
	}

	sql := fmt.Sprintf(`SELECT
		product_id,
		MIN(product_variant_id) AS product_variant_id,
		MIN(product_name) AS product_name,
		MIN(product_variant_name) AS product_variant_name,
		MIN(description) AS description,
		MIN(slug) AS slug,
		MIN(sku) AS sku,
		BOOL_OR(enabled) AS enabled,
		MIN(currency_code) AS currency_code,
		MIN(price) AS price_min,
		MAX(price) AS price_max,
		MIN(price_with_tax) AS price_with_tax_min,
		MAX(price_with_tax) AS price_with_tax_max,
		STRING_AGG(facet_ids, ',') AS facet_ids,
		STRING_AGG(facet_value_ids, ',') AS facet_value_ids,
		STRING_AGG(collection_ids, ',') AS collection_ids,
		MIN(product_preview) AS product_preview,
		MIN(product_variant_preview) AS product_variant_preview,
		MAX(%s) AS score
	FROM search_index WHERE %s GROUP BY product_id`, score, pred)
	if enabledOnly {
		sql += " HAVING BOOL_OR(enabled)"
	}
	return sql
}

func orderBySQL(q *domain.SearchQuery) string {
	dir := func(d domain.SortDirection) string {
		if d == domain.SortDesc {
			return "DESC"
		}
		return "ASC"
	}
	switch {
	case q.Sort.Name != "":
		return fmt.Sprintf(" ORDER BY product_name %s, product_id ASC", dir(q.Sort.Name))
	case q.Sort.Price != "":
		col := "price"
		if q.GroupByProduct {
			col = "price_min"
		}
		return fmt.Sprintf(" ORDER BY %s %s, product_id ASC", col, dir(q.Sort.Price))
	case q.EffectiveTerm() != "":
		return " ORDER BY score DESC, product_id ASC"
	default:
		return " ORDER BY product_id ASC, product_variant_id ASC"
	}
}

func (e *Engine) SearchResults(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) ([]domain.SearchResultRow, error) {
	b := &queryBuilder{}
	sql := selectSQL(b, q, enabledOnly) + orderBySQL(q)
	sql += fmt.Sprintf(" LIMIT %s OFFSET %s", b.bind(q.EffectiveTake()), b.bind(q.EffectiveSkip()))

	rows, err := e.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResultRow{}
	for rows.Next() {
		var (
			r                              domain.SearchResultRow
			facetIDs, facetValueIDs        string
			collectionIDs                  string
			priceMin, priceMax             int64
			taxMin, taxMax                 int64
		)
		if q.GroupByProduct {
			err = rows.Scan(
				&r.ProductID, &r.ProductVariantID, &r.ProductName, &r.VariantName,
				&r.Description, &r.Slug, &r.SKU, &r.Enabled, &r.CurrencyCode,
				&priceMin, &priceMax, &taxMin, &taxMax,
				&facetIDs, &facetValueIDs, &collectionIDs,
				&r.ProductPreview, &r.VariantPreview, &r.Score,
			)
			r.PriceRange = &domain.PriceRange{Min: priceMin, Max: priceMax}
			r.PriceWithTaxRange = &domain.PriceRange{Min: taxMin, Max: taxMax}
			r.FacetIDs = domain.UnionIDs(facetIDs)
			r.FacetValueIDs = domain.UnionIDs(facetValueIDs)
			r.CollectionIDs = domain.UnionIDs(collectionIDs)
		} else {
			err = rows.Scan(
				&r.ProductID, &r.ProductVariantID, &r.ProductName, &r.VariantName,
				&r.Description, &r.Slug, &r.SKU, &r.Enabled, &r.CurrencyCode,
				&r.Price, &r.PriceWithTax,
				&facetIDs, &facetValueIDs, &collectionIDs,
				&r.ProductPreview, &r.VariantPreview, &r.Score,
			)
			r.FacetIDs = domain.SplitIDs(facetIDs)
			r.FacetValueIDs = domain.SplitIDs(facetValueIDs)
			r.CollectionIDs = domain.SplitIDs(collectionIDs)
		}
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return results, nil
}

// TotalCount wraps the unpaginated result query in a COUNT so grouped and
// ungrouped totals are computed by the same predicate as the results.
func (e *Engine) TotalCount(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (int, error) {
	b := &queryBuilder{}
	inner := selectSQL(b, q, enabledOnly)
	var n int
	err := e.db.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS matched", inner),
		b.args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count search rows: %w", err)
	}
	return n, nil
}

// idColumnCounts fetches one delimited id column across all matching rows
// (or per-product aggregates in grouped mode) and tallies occurrences.
func (e *Engine) idColumnCounts(ctx context.Context, q *domain.SearchQuery, enabledOnly bool, column string) (map[string]int, error) {
	b := &queryBuilder{}
	pred, _ := b.where(q, enabledOnly)

	var sql string
	if q.GroupByProduct {
		sql = fmt.Sprintf(`SELECT STRING_AGG(%s, ',') FROM search_index WHERE %s GROUP BY product_id`, column, pred)
		if enabledOnly {
			sql += " HAVING BOOL_OR(enabled)"
		}
	} else {
		sql = fmt.Sprintf(`SELECT %s FROM search_index WHERE %s`, column, pred)
	}

	rows, err := e.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var col *string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan %s: %w", column, err)
		}
		if col == nil {
			continue
		}
		for _, id := range domain.UnionIDs(*col) {
			counts[id]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count %s rows: %w", column, err)
	}
	return counts, nil
}

func (e *Engine) FacetValueIDs(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error) {
	return e.idColumnCounts(ctx, q, enabledOnly, "facet_value_ids")
}

func (e *Engine) CollectionIDs(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error) {
	return e.idColumnCounts(ctx, q, enabledOnly, "collection_ids")
}
