package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/shopforge/catalogsearch/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// The in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	e := New(db)
	require.NoError(t, e.EnsureSchema(context.Background()))
	return e
}

func row(variantID, productID string, mut func(*domain.IndexRow)) domain.IndexRow {
	r := domain.IndexRow{
		ProductVariantID: variantID,
		LanguageCode:     "en",
		ChannelID:        "ch-1",
		ProductID:        productID,
		Enabled:          true,
		ProductName:      "Plain Product",
		VariantName:      "Plain Variant",
		Description:      "plain description",
		Slug:             "plain-product",
		SKU:              "SKU-" + variantID,
		Price:            1000,
		PriceWithTax:     1200,
		CurrencyCode:     "USD",
		UpdatedAt:        time.Now(),
	}
	if mut != nil {
		mut(&r)
	}
	return r
}

func query() *domain.SearchQuery {
	return &domain.SearchQuery{LanguageCode: "en", ChannelID: "ch-1"}
}

func TestSearchResults_RanksByFieldWeight(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-desc", "p-desc", func(r *domain.IndexRow) { r.Description = "a laptop sleeve" }),
		row("v-sku", "p-sku", func(r *domain.IndexRow) { r.SKU = "LAPTOP-01" }),
		row("v-pname", "p-pname", func(r *domain.IndexRow) { r.ProductName = "Laptop Stand" }),
		row("v-miss", "p-miss", nil),
	}))

	q := query()
	q.Term = "laptop"
	got, err := e.SearchResults(ctx, q, false)
	require.NoError(t, err)
	require.Len(t, got, 3, "non-matching rows are excluded")
	assert.Equal(t, "v-sku", got[0].ProductVariantID)
	assert.Equal(t, "v-pname", got[1].ProductVariantID)
	assert.Equal(t, "v-desc", got[2].ProductVariantID)
	assert.Greater(t, got[0].Score, got[1].Score)
}

func TestSearchResults_FacetMembershipIsWholeToken(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-10", "p-10", func(r *domain.IndexRow) { r.FacetValueIDs = "10,215" }),
		row("v-1", "p-1", func(r *domain.IndexRow) { r.FacetValueIDs = "1" }),
	}))

	q := query()
	q.FacetValueIDs = []string{"1"}
	got, err := e.SearchResults(ctx, q, false)
	require.NoError(t, err)
	require.Len(t, got, 1, `facet value "1" must not match a row tagged "10"`)
	assert.Equal(t, "v-1", got[0].ProductVariantID)
}

func TestSearchResults_FacetFilterIsConjunctive(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) { r.FacetValueIDs = "1,2" }),
		row("v-2", "p-2", func(r *domain.IndexRow) { r.FacetValueIDs = "1" }),
	}))

	q := query()
	q.FacetValueIDs = []string{"1", "2"}
	got, err := e.SearchResults(ctx, q, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v-1", got[0].ProductVariantID)
}

func TestSearchResults_GroupedAggregation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) {
			r.Price = 500
			r.PriceWithTax = 600
			r.Enabled = false
			r.FacetValueIDs = "1,2"
		}),
		row("v-2", "p-1", func(r *domain.IndexRow) {
			r.Price = 1500
			r.PriceWithTax = 1800
			r.FacetValueIDs = "2,3"
		}),
	}))

	q := query()
	q.GroupByProduct = true
	got, err := e.SearchResults(ctx, q, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].PriceRange)
	assert.Equal(t, int64(500), got[0].PriceRange.Min)
	assert.Equal(t, int64(1500), got[0].PriceRange.Max)
	require.NotNil(t, got[0].PriceWithTaxRange)
	assert.Equal(t, int64(600), got[0].PriceWithTaxRange.Min)
	assert.Equal(t, int64(1800), got[0].PriceWithTaxRange.Max)
	assert.True(t, got[0].Enabled, "one enabled variant enables the group")
	assert.ElementsMatch(t, []string{"1", "2", "3"}, got[0].FacetValueIDs)
}

func TestSearchResults_GroupedEnabledOnlyDropsFullyDisabledProducts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-dead", func(r *domain.IndexRow) { r.Enabled = false }),
		row("v-2", "p-dead", func(r *domain.IndexRow) { r.Enabled = false }),
		row("v-3", "p-half", func(r *domain.IndexRow) { r.Enabled = false }),
		row("v-4", "p-half", nil),
	}))

	q := query()
	q.GroupByProduct = true
	got, err := e.SearchResults(ctx, q, true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p-half", got[0].ProductID)
}

func TestTotalCount_IgnoresPagination(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	rows := make([]domain.IndexRow, 0, 30)
	for i := 0; i < 30; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		rows = append(rows, row("v-"+id, "p-"+id, nil))
	}
	require.NoError(t, e.Upsert(ctx, rows))

	q := query()
	q.Take = 5
	got, err := e.SearchResults(ctx, q, false)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	total, err := e.TotalCount(ctx, q, false)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
}

func TestFacetValueIDs_CountsPerProductWhenGrouped(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) { r.FacetValueIDs = "1,2" }),
		row("v-2", "p-1", func(r *domain.IndexRow) { r.FacetValueIDs = "1" }),
		row("v-3", "p-2", func(r *domain.IndexRow) { r.FacetValueIDs = "2" }),
	}))

	counts, err := e.FacetValueIDs(ctx, query(), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1": 2, "2": 2}, counts)

	q := query()
	q.GroupByProduct = true
	counts, err = e.FacetValueIDs(ctx, q, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1": 1, "2": 2}, counts)
}

func TestUpsert_ReplacesByCompositeKey(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) { r.Price = 100 }),
	}))
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) { r.Price = 999 }),
	}))

	got, err := e.SearchResults(ctx, query(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(999), got[0].Price)
}

func TestDeleteStale(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	cutoff := time.Now()
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-old", "p-1", func(r *domain.IndexRow) { r.UpdatedAt = cutoff.Add(-time.Hour) }),
		row("v-new", "p-2", func(r *domain.IndexRow) { r.UpdatedAt = cutoff.Add(time.Hour) }),
	}))

	removed, err := e.DeleteStale(ctx, "ch-1", "en", cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := e.SearchResults(ctx, query(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v-new", got[0].ProductVariantID)
}

func TestSyntheticRowLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row(domain.SyntheticVariantID("p-1"), "p-1", func(r *domain.IndexRow) {
			r.Synthetic = true
			r.SKU = ""
		}),
	}))

	n, err := e.VariantRowCount(ctx, "ch-1", "p-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{row("v-1", "p-1", nil)}))
	require.NoError(t, e.DeleteSyntheticRows(ctx, "ch-1", "p-1"))

	got, err := e.SearchResults(ctx, query(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v-1", got[0].ProductVariantID)
}

func TestAssetMaintenance(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.Upsert(ctx, []domain.IndexRow{
		row("v-1", "p-1", func(r *domain.IndexRow) {
			r.ProductAssetID = "asset-1"
			r.ProductPreview = "https://cdn/old.jpg"
		}),
	}))

	require.NoError(t, e.UpdateAsset(ctx, &domain.AssetSnapshot{ID: "asset-1", Preview: "https://cdn/new.jpg"}))
	got, err := e.SearchResults(ctx, query(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn/new.jpg", got[0].ProductPreview)

	require.NoError(t, e.RemoveAsset(ctx, "asset-1"))
	got, err = e.SearchResults(ctx, query(), false)
	require.NoError(t, err)
	assert.Empty(t, got[0].ProductPreview)
}
