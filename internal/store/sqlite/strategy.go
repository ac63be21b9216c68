package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopforge/catalogsearch/internal/domain"
)

func buildWhere(q *domain.SearchQuery, enabledOnly bool) (pred, score string, predArgs, termArgs []any) {
	conds := []string{"channel_id = ?"}
	predArgs = append(predArgs, q.ChannelID)
	if q.LanguageCode != "" {
		conds = append(conds, "language_code = ?")
		predArgs = append(predArgs, q.LanguageCode)
	}
	if enabledOnly && !q.GroupByProduct {
		conds = append(conds, "enabled")
	}
	memberOf := func(column string) string {
		return fmt.Sprintf(`(',' || %s || ',') LIKE ('%%,' || ? || ',%%')`, column)
	}
	for _, fv := range q.FacetValueIDs {
		conds = append(conds, memberOf("facet_value_ids"))
		predArgs = append(predArgs, fv)
	}
	if q.CollectionID != "" {
		conds = append(conds, memberOf("collection_ids"))
		predArgs = append(predArgs, q.CollectionID)
	}
	if q.CollectionSlug != "" {
		conds = append(conds, memberOf("collection_slugs"))
		predArgs = append(predArgs, q.CollectionSlug)
	}

	score = "0.0"
	if term := q.EffectiveTerm(); term != "" {
		score = fmt.Sprintf(`(
			CASE WHEN sku LIKE '%%' || ? || '%%' THEN %v ELSE 0.0 END
			+ CASE WHEN product_name LIKE '%%' || ? || '%%' THEN %v ELSE 0.0 END
			+ CASE WHEN product_variant_name LIKE '%%' || ? || '%%' THEN %v ELSE 0.0 END
			+ CASE WHEN description LIKE '%%' || ? || '%%' THEN %v ELSE 0.0 END
		)`, domain.WeightSKU, domain.WeightProductName, domain.WeightVariantName, domain.WeightDescription)
		termArgs = []any{term, term, term, term}
		conds = append(conds, score+" > 0")
	}
	return strings.Join(conds, " AND "), score, predArgs, termArgs
}

const ungroupedColumns = `product_id, product_variant_id, product_name, product_variant_name,
	description, slug, sku, enabled, currency_code,
	price, price_with_tax,
	facet_ids, facet_value_ids, collection_ids,
	product_preview, product_variant_preview`

func selectSQL(q *domain.SearchQuery, enabledOnly bool) (string, []any) {
	pred, score, predArgs, termArgs := buildWhere(q, enabledOnly)

	args := make([]any, 0, len(predArgs)+2*len(termArgs))
	args = append(args, termArgs...)
	args = append(args, predArgs...)
	args = append(args, termArgs...)

	if !q.GroupByProduct {
		query := fmt.Sprintf(
			`SELECT %s, %s AS score FROM search_index WHERE %s`,
			ungroupedColumns, score, pred,
		)
		return query, args
	}

	query := fmt.Sprintf(`SELECT
		product_id,
		MIN(product_variant_id) AS product_variant_id,
		MIN(product_name) AS product_name,
		MIN(product_variant_name) AS product_variant_name,
		MIN(description) AS description,
		MIN(slug) AS slug,
		MIN(sku) AS sku,
		MAX(enabled) AS enabled,
		MIN(currency_code) AS currency_code,
		MIN(price) AS price_min,
		MAX(price) AS price_max,
		MIN(price_with_tax) AS price_with_tax_min,
		MAX(price_with_tax) AS price_with_tax_max,
		GROUP_CONCAT(facet_ids, ',') AS facet_ids,
		GROUP_CONCAT(facet_value_ids, ',') AS facet_value_ids,
		GROUP_CONCAT(collection_ids, ',') AS collection_ids,
		MIN(product_preview) AS product_preview,
		MIN(product_variant_preview) AS product_variant_preview,
		MAX(%s) AS score
	FROM search_index WHERE %s GROUP BY product_id`, score, pred)
	if enabledOnly {
		query += " HAVING MAX(enabled) > 0"
	}
	return query, args
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
	query, args := selectSQL(q, enabledOnly)
	query += orderBySQL(q) + " LIMIT ? OFFSET ?"
	args = append(args, q.EffectiveTake(), q.EffectiveSkip())

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	results := []domain.SearchResultRow{}
	for rows.Next() {
		var (
			r                       domain.SearchResultRow
			facetIDs, facetValueIDs string
			collectionIDs           string
			priceMin, priceMax      int64
			taxMin, taxMax          int64
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

func (e *Engine) TotalCount(ctx context.Context, q *domain.SearchQuery, enabledOnly bool) (int, error) {
	inner, args := selectSQL(q, enabledOnly)
	var n int
	err := e.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS matched", inner),
		args...,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count search rows: %w", err)
	}
	return n, nil
}

func (e *Engine) idColumnCounts(ctx context.Context, q *domain.SearchQuery, enabledOnly bool, column string) (map[string]int, error) {
	pred, _, predArgs, termArgs := buildWhere(q, enabledOnly)
	args := append(predArgs, termArgs...)

	var query string
	if q.GroupByProduct {
		query = fmt.Sprintf(`SELECT GROUP_CONCAT(%s, ',') FROM search_index WHERE %s GROUP BY product_id`, column, pred)
		if enabledOnly {
			query += " HAVING MAX(enabled) > 0"
		}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM search_index WHERE %s`, column, pred)
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
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
