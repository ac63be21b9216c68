package indexer

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/catalogsearch/internal/catalog"
	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/indexer/jobstore"
	"github.com/shopforge/catalogsearch/internal/store/memory"
	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

var testSecret = []byte("test-session-secret")

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type fakeCatalog struct {
	products map[string]*catalog.ProductSnapshot
}

func (f *fakeCatalog) Product(_ context.Context, id string) (*catalog.ProductSnapshot, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return p, nil
}

func (f *fakeCatalog) Variants(_ context.Context, ids []string) ([]catalog.VariantSnapshot, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []catalog.VariantSnapshot
	for _, p := range f.products {
		for _, v := range p.Variants {
			if _, ok := wanted[v.ID]; ok {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) Products(_ context.Context, page, pageSize int) (*catalog.ProductPage, error) {
	ids := make([]string, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := (page - 1) * pageSize
	out := &catalog.ProductPage{TotalItems: len(ids)}
	for i := start; i < len(ids) && i < start+pageSize; i++ {
		out.Items = append(out.Items, *f.products[ids[i]])
	}
	return out, nil
}

func sessionToken(t *testing.T) string {
	t.Helper()
	tok, err := domain.SignSession(testSecret, &domain.SessionContext{
		ChannelID:    "ch-1",
		LanguageCode: "en",
		CurrencyCode: "USD",
		ActorID:      "admin-1",
	})
	require.NoError(t, err)
	return tok
}

func product(id string, enabled bool, variants ...catalog.VariantSnapshot) *catalog.ProductSnapshot {
	return &catalog.ProductSnapshot{
		ID:          id,
		Name:        "Product " + id,
		Slug:        "product-" + id,
		Description: "description of " + id,
		Enabled:     enabled,
		Variants:    variants,
	}
}

func variant(id, productID string, enabled bool) catalog.VariantSnapshot {
	return catalog.VariantSnapshot{
		ID:           id,
		ProductID:    productID,
		SKU:          "SKU-" + id,
		Name:         "Variant " + id,
		Enabled:      enabled,
		Price:        1000,
		PriceWithTax: 1200,
		CurrencyCode: "USD",
	}
}

func newTestIndexer(cat *fakeCatalog) (*Indexer, *memory.Store, *jobstore.MemoryStore) {
	engine := memory.New()
	jobs := jobstore.NewMemoryStore()
	ix := New(engine, cat, jobs, testSecret, testLogger())
	ix.batchSize = 2
	return ix, engine, jobs
}

func searchAll(t *testing.T, engine *memory.Store) []domain.SearchResultRow {
	t.Helper()
	rows, err := engine.SearchResults(context.Background(),
		&domain.SearchQuery{ChannelID: "ch-1", LanguageCode: "en", Take: 100}, false)
	require.NoError(t, err)
	return rows
}

func TestProcess_RejectsBadSessionToken(t *testing.T) {
	ix, _, _ := newTestIndexer(&fakeCatalog{})
	err := ix.Process(context.Background(), &domain.Task{
		Type: domain.TaskUpdateProduct,
		Ctx:  "not-a-token",
	})
	require.Error(t, err)
}

func TestProcess_UnhandledTypeFails(t *testing.T) {
	ix, _, _ := newTestIndexer(&fakeCatalog{})
	err := ix.Process(context.Background(), &domain.Task{
		Type: "defragment-index",
		Ctx:  sessionToken(t),
	})
	require.Error(t, err)
}

func TestUpdateProduct_WritesVariantRows(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true,
			variant("v-1", "p-1", true),
			variant("v-2", "p-1", false),
		),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 2)
	byVariant := map[string]domain.SearchResultRow{}
	for _, r := range rows {
		byVariant[r.ProductVariantID] = r
	}
	assert.True(t, byVariant["v-1"].Enabled)
	assert.False(t, byVariant["v-2"].Enabled, "disabled variant stays disabled")
	assert.Equal(t, "Product p-1", byVariant["v-1"].ProductName)
	assert.Equal(t, "SKU-v-1", byVariant["v-1"].SKU)
}

func TestUpdateProduct_DisabledProductDisablesAllRows(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", false, variant("v-1", "p-1", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Enabled, "an enabled variant of a disabled product is not visible")
}

func TestUpdateProduct_VariantlessProductGetsSyntheticRow(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1, "the product stays discoverable without variants")
	assert.Equal(t, domain.SyntheticVariantID("p-1"), rows[0].ProductVariantID)

	n, err := engine.VariantRowCount(ctx, "ch-1", "p-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateProduct_FirstVariantReplacesSyntheticRow(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true),
	}}
	ix, engine, _ := newTestIndexer(cat)

	task := &domain.Task{Type: domain.TaskUpdateProduct, Ctx: sessionToken(t), ProductID: "p-1"}
	require.NoError(t, ix.Process(ctx, task))

	cat.products["p-1"] = product("p-1", true, variant("v-1", "p-1", true))
	require.NoError(t, ix.Process(ctx, task))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1)
	assert.Equal(t, "v-1", rows[0].ProductVariantID)
}

func TestUpdateProduct_GoneProductDropsRows(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	task := &domain.Task{Type: domain.TaskUpdateProduct, Ctx: sessionToken(t), ProductID: "p-1"}
	require.NoError(t, ix.Process(ctx, task))
	require.Len(t, searchAll(t, engine), 1)

	delete(cat.products, "p-1")
	require.NoError(t, ix.Process(ctx, task))
	assert.Empty(t, searchAll(t, engine))
}

func TestDeleteVariant_LastVariantRestoresSyntheticRow(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))

	// The catalog no longer has the variant; its deletion event arrives.
	cat.products["p-1"] = product("p-1", true)
	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:             domain.TaskDeleteVariant,
		Ctx:              sessionToken(t),
		ProductID:        "p-1",
		ProductVariantID: "v-1",
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.SyntheticVariantID("p-1"), rows[0].ProductVariantID)
}

func TestUpdateVariantsByID_ReportsProgress(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true), variant("v-2", "p-1", true)),
		"p-2": product("p-2", true, variant("v-3", "p-2", true)),
	}}
	ix, engine, jobs := newTestIndexer(cat)
	require.NoError(t, jobs.Create(ctx, &jobstore.Job{ID: "job-1", Kind: "update-variants"}))

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:  domain.TaskUpdateVariantsByID,
		Ctx:   sessionToken(t),
		JobID: "job-1",
		IDs:   []string{"v-1", "v-2", "v-3"},
	}))

	j, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StateCompleted, j.State)
	assert.Equal(t, 100, j.Progress())
	assert.Len(t, searchAll(t, engine), 3)
}

func TestUpdateVariantsByID_DeletedVariantsAreDropped(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true), variant("v-2", "p-1", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))
	require.Len(t, searchAll(t, engine), 2)

	// v-2 disappears from the catalog before the update task runs.
	cat.products["p-1"] = product("p-1", true, variant("v-1", "p-1", true))
	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type: domain.TaskUpdateVariantsByID,
		Ctx:  sessionToken(t),
		IDs:  []string{"v-1", "v-2"},
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1)
	assert.Equal(t, "v-1", rows[0].ProductVariantID)
}

func TestReindex_RebuildsAndDropsStaleRows(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true)),
		"p-2": product("p-2", true, variant("v-2", "p-2", true)),
		"p-3": product("p-3", true, variant("v-3", "p-3", true)),
	}}
	ix, engine, jobs := newTestIndexer(cat)

	// A leftover row for a product that no longer exists.
	require.NoError(t, engine.Upsert(ctx, []domain.IndexRow{{
		ProductVariantID: "v-ghost",
		LanguageCode:     "en",
		ChannelID:        "ch-1",
		ProductID:        "p-ghost",
		Enabled:          true,
		UpdatedAt:        time.Now().Add(-time.Hour),
	}}))

	require.NoError(t, jobs.Create(ctx, &jobstore.Job{ID: "job-1", Kind: "reindex"}))
	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:  domain.TaskReindex,
		Ctx:   sessionToken(t),
		JobID: "job-1",
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 3, "ghost row is gone, live products are present")
	for _, r := range rows {
		assert.NotEqual(t, "p-ghost", r.ProductID)
	}

	j, err := jobs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StateCompleted, j.State)
	assert.Equal(t, 100, j.Progress())
}

func TestReindex_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true)),
		"p-2": product("p-2", true, variant("v-2", "p-2", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	task := &domain.Task{Type: domain.TaskReindex, Ctx: sessionToken(t)}
	require.NoError(t, ix.Process(ctx, task))
	first := searchAll(t, engine)

	require.NoError(t, ix.Process(ctx, task))
	second := searchAll(t, engine)

	assert.Equal(t, len(first), len(second))
	assert.Equal(t, 2, engine.Len())
}

func TestChannelAssignment(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{
		"p-1": product("p-1", true, variant("v-1", "p-1", true)),
	}}
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskAssignProductToChannel,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
		ChannelID: "ch-2",
	}))

	inCh2, err := engine.SearchResults(ctx,
		&domain.SearchQuery{ChannelID: "ch-2", LanguageCode: "en"}, false)
	require.NoError(t, err)
	require.Len(t, inCh2, 1)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskRemoveProductFromChannel,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
		ChannelID: "ch-2",
	}))
	inCh2, err = engine.SearchResults(ctx,
		&domain.SearchQuery{ChannelID: "ch-2", LanguageCode: "en"}, false)
	require.NoError(t, err)
	assert.Empty(t, inCh2)
}

func TestAssetTasks(t *testing.T) {
	ctx := context.Background()
	cat := &fakeCatalog{products: map[string]*catalog.ProductSnapshot{}}
	p := product("p-1", true, variant("v-1", "p-1", true))
	p.AssetID = "asset-1"
	p.Preview = "https://cdn/old.jpg"
	cat.products["p-1"] = p
	ix, engine, _ := newTestIndexer(cat)

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:      domain.TaskUpdateProduct,
		Ctx:       sessionToken(t),
		ProductID: "p-1",
	}))

	require.NoError(t, ix.Process(ctx, &domain.Task{
		Type:  domain.TaskUpdateAsset,
		Ctx:   sessionToken(t),
		Asset: &domain.AssetSnapshot{ID: "asset-1", Preview: "https://cdn/new.jpg"},
	}))

	rows := searchAll(t, engine)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://cdn/new.jpg", rows[0].ProductPreview)

	err := ix.Process(ctx, &domain.Task{Type: domain.TaskUpdateAsset, Ctx: sessionToken(t)})
	require.Error(t, err, "asset tasks need a payload")
}
