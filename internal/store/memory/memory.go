// Package memory implements the search engine contract over an in-process
// map. It is the reference implementation the SQL dialects are tested
// against, and the backing store for tests that do not want a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/store"
)

type rowKey struct {
	variantID    string
	languageCode string
	channelID    string
}

// Store holds index rows keyed by (variant, language, channel). All methods
// are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	rows map[rowKey]domain.IndexRow
}

var _ store.Engine = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[rowKey]domain.IndexRow)}
}

// Len reports the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func keyOf(r *domain.IndexRow) rowKey {
	return rowKey{variantID: r.ProductVariantID, languageCode: r.LanguageCode, channelID: r.ChannelID}
}

func (s *Store) Upsert(_ context.Context, rows []domain.IndexRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = time.Now()
		}
		s.rows[keyOf(&r)] = r
	}
	return nil
}

func (s *Store) DeleteByVariantIDs(_ context.Context, channelID string, variantIDs []string) error {
	wanted := make(map[string]struct{}, len(variantIDs))
	for _, id := range variantIDs {
		wanted[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.rows {
		if k.channelID != channelID {
			continue
		}
		if _, ok := wanted[k.variantID]; ok {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *Store) DeleteByProductID(_ context.Context, channelID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.rows {
		if k.channelID == channelID && r.ProductID == productID {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *Store) DeleteSyntheticRows(_ context.Context, channelID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.rows {
		if k.channelID == channelID && r.ProductID == productID && r.Synthetic {
			delete(s.rows, k)
		}
	}
	return nil
}

func (s *Store) VariantRowCount(_ context.Context, channelID, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k, r := range s.rows {
		if k.channelID == channelID && r.ProductID == productID && !r.Synthetic {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteStale(_ context.Context, channelID, languageCode string, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for k, r := range s.rows {
		if k.channelID != channelID {
			continue
		}
		if languageCode != "" && k.languageCode != languageCode {
			continue
		}
		if r.UpdatedAt.Before(before) {
			delete(s.rows, k)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) UpdateAsset(_ context.Context, asset *domain.AssetSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.rows {
		changed := false
		if r.ProductAssetID == asset.ID {
			r.ProductPreview = asset.Preview
			changed = true
		}
		if r.VariantAssetID == asset.ID {
			r.VariantPreview = asset.Preview
			changed = true
		}
		if changed {
			s.rows[k] = r
		}
	}
	return nil
}

func (s *Store) RemoveAsset(_ context.Context, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.rows {
		changed := false
		if r.ProductAssetID == assetID {
			r.ProductAssetID = ""
			r.ProductPreview = ""
			changed = true
		}
		if r.VariantAssetID == assetID {
			r.VariantAssetID = ""
			r.VariantPreview = ""
			changed = true
		}
		if changed {
			s.rows[k] = r
		}
	}
	return nil
}

// matchScore returns whether the row matches the term and its relevance
// score. An empty term matches everything with score zero.
func matchScore(r *domain.IndexRow, term string) (bool, float64) {
	if term == "" {
		return true, 0
	}
	t := strings.ToLower(term)
	var score float64
	if strings.Contains(strings.ToLower(r.SKU), t) {
		score += domain.WeightSKU
	}
	if strings.Contains(strings.ToLower(r.ProductName), t) {
		score += domain.WeightProductName
	}
	if strings.Contains(strings.ToLower(r.VariantName), t) {
		score += domain.WeightVariantName
	}
	if strings.Contains(strings.ToLower(r.Description), t) {
		score += domain.WeightDescription
	}
	return score > 0, score
}

// matches applies the full filter predicate except the enabled check, which
// grouped queries evaluate after aggregation.
func matches(r *domain.IndexRow, q *domain.SearchQuery) (bool, float64) {
	if r.ChannelID != q.ChannelID {
		return false, 0
	}
	if q.LanguageCode != "" && r.LanguageCode != q.LanguageCode {
		return false, 0
	}
	for _, fv := range q.FacetValueIDs {
		if !domain.ContainsID(r.FacetValueIDs, fv) {
			return false, 0
		}
	}
	if q.CollectionID != "" && !domain.ContainsID(r.CollectionIDs, q.CollectionID) {
		return false, 0
	}
	if q.CollectionSlug != "" && !domain.ContainsID(r.CollectionSlugs, q.CollectionSlug) {
		return false, 0
	}
	return matchScore(r, q.EffectiveTerm())
}

type scoredRow struct {
	row   domain.IndexRow
	score float64
}

// candidates returns the filtered rows in a deterministic order. In grouped
// mode the enabled filter applies to the aggregate, so it is deferred.
func (s *Store) candidates(q *domain.SearchQuery, enabledOnly bool) []scoredRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scoredRow
	for _, r := range s.rows {
		ok, score := matches(&r, q)
		if !ok {
			continue
		}
		if enabledOnly && !q.GroupByProduct && !r.Enabled {
			continue
		}
		out = append(out, scoredRow{row: r, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].row.ProductID != out[j].row.ProductID {
			return out[i].row.ProductID < out[j].row.ProductID
		}
		return out[i].row.ProductVariantID < out[j].row.ProductVariantID
	})
	return out
}

func resultFromRow(sr scoredRow) domain.SearchResultRow {
	r := sr.row
	return domain.SearchResultRow{
		ProductID:        r.ProductID,
		ProductVariantID: r.ProductVariantID,
		ProductName:      r.ProductName,
		VariantName:      r.VariantName,
		Description:      r.Description,
		Slug:             r.Slug,
		SKU:              r.SKU,
		Enabled:          r.Enabled,
		CurrencyCode:     r.CurrencyCode,
		Price:            r.Price,
		PriceWithTax:     r.PriceWithTax,
		FacetIDs:         domain.SplitIDs(r.FacetIDs),
		FacetValueIDs:    domain.SplitIDs(r.FacetValueIDs),
		CollectionIDs:    domain.SplitIDs(r.CollectionIDs),
		ProductPreview:   r.ProductPreview,
		VariantPreview:   r.VariantPreview,
		Score:            sr.score,
	}
}

// groupByProduct collapses variant rows into one result per product: price
// becomes a (min, max) range, enabled is the OR across the group, multi-value
// columns are the union, and the score is the best variant's score.
func groupByProduct(rows []scoredRow) []domain.SearchResultRow {
	order := make([]string, 0)
	groups := make(map[string][]scoredRow)
	for _, sr := range rows {
		pid := sr.row.ProductID
		if _, ok := groups[pid]; !ok {
			order = append(order, pid)
		}
		groups[pid] = append(groups[pid], sr)
	}

	out := make([]domain.SearchResultRow, 0, len(order))
	for _, pid := range order {
		grp := groups[pid]
		res := resultFromRow(grp[0])
		priceMin, priceMax := grp[0].row.Price, grp[0].row.Price
		taxMin, taxMax := grp[0].row.PriceWithTax, grp[0].row.PriceWithTax
		enabled := grp[0].row.Enabled
		facetCols := make([]string, 0, len(grp))
		facetValueCols := make([]string, 0, len(grp))
		collectionCols := make([]string, 0, len(grp))
		for _, sr := range grp {
			r := sr.row
			if r.Price < priceMin {
				priceMin = r.Price
			}
			if r.Price > priceMax {
				priceMax = r.Price
			}
			if r.PriceWithTax < taxMin {
				taxMin = r.PriceWithTax
			}
			if r.PriceWithTax > taxMax {
				taxMax = r.PriceWithTax
			}
			enabled = enabled || r.Enabled
			if sr.score > res.Score {
				res.Score = sr.score
			}
			facetCols = append(facetCols, r.FacetIDs)
			facetValueCols = append(facetValueCols, r.FacetValueIDs)
			collectionCols = append(collectionCols, r.CollectionIDs)
		}
		res.Enabled = enabled
		res.Price = 0
		res.PriceWithTax = 0
		res.PriceRange = &domain.PriceRange{Min: priceMin, Max: priceMax}
		res.PriceWithTaxRange = &domain.PriceRange{Min: taxMin, Max: taxMax}
		res.FacetIDs = domain.UnionIDs(facetCols...)
		res.FacetValueIDs = domain.UnionIDs(facetValueCols...)
		res.CollectionIDs = domain.UnionIDs(collectionCols...)
		out = append(out, res)
	}
	return out
}

// assemble produces the full ordered result set before pagination.
func (s *Store) assemble(q *domain.SearchQuery, enabledOnly bool) []domain.SearchResultRow {
	rows := s.candidates(q, enabledOnly)

	var results []domain.SearchResultRow
	if q.GroupByProduct {
		results = groupByProduct(rows)
		if enabledOnly {
			kept := results[:0]
			for _, r := range results {
				if r.Enabled {
					kept = append(kept, r)
				}
			}
			results = kept
		}
	} else {
		results = make([]domain.SearchResultRow, 0, len(rows))
		for _, sr := range rows {
			results = append(results, resultFromRow(sr))
		}
	}

	sortResults(results, q)
	return results
}

// sortResults applies explicit sort when requested, otherwise orders by
// relevance. Ties fall back to product id for a stable ordering.
func sortResults(results []domain.SearchResultRow, q *domain.SearchQuery) {
	less := func(i, j int) bool { return results[i].ProductID < results[j].ProductID }
	switch {
	case q.Sort.Name != "":
		asc := q.Sort.Name != domain.SortDesc
		less = func(i, j int) bool {
			a, b := results[i].ProductName, results[j].ProductName
			if a == b {
				return results[i].ProductID < results[j].ProductID
			}
			if asc {
				return a < b
			}
			return a > b
		}
	case q.Sort.Price != "":
		asc := q.Sort.Price != domain.SortDesc
		price := func(r *domain.SearchResultRow) int64 {
			if r.PriceRange != nil {
				return r.PriceRange.Min
			}
			return r.Price
		}
		less = func(i, j int) bool {
			a, b := price(&results[i]), price(&results[j])
			if a == b {
				return results[i].ProductID < results[j].ProductID
			}
			if asc {
				return a < b
			}
			return a > b
		}
	case q.EffectiveTerm() != "":
		less = func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			return results[i].ProductID < results[j].ProductID
		}
	}
	sort.SliceStable(results, less)
}

func (s *Store) SearchResults(_ context.Context, q *domain.SearchQuery, enabledOnly bool) ([]domain.SearchResultRow, error) {
	results := s.assemble(q, enabledOnly)
	skip, take := q.EffectiveSkip(), q.EffectiveTake()
	if skip >= len(results) {
		return []domain.SearchResultRow{}, nil
	}
	end := skip + take
	if end > len(results) {
		end = len(results)
	}
	return results[skip:end], nil
}

func (s *Store) TotalCount(_ context.Context, q *domain.SearchQuery, enabledOnly bool) (int, error) {
	return len(s.assemble(q, enabledOnly)), nil
}

func (s *Store) FacetValueIDs(_ context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error) {
	counts := make(map[string]int)
	for _, r := range s.assemble(q, enabledOnly) {
		for _, id := range r.FacetValueIDs {
			counts[id]++
		}
	}
	return counts, nil
}

func (s *Store) CollectionIDs(_ context.Context, q *domain.SearchQuery, enabledOnly bool) (map[string]int, error) {
	counts := make(map[string]int)
	for _, r := range s.assemble(q, enabledOnly) {
		for _, id := range r.CollectionIDs {
			counts[id]++
		}
	}
	return counts, nil
}
