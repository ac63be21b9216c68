package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/indexer/jobstore"
	"github.com/shopforge/catalogsearch/internal/store/memory"
)

var testSecret = []byte("test-session-secret")

type fakeResolver struct {
	facetValues map[string]domain.FacetValue
	collections map[string]domain.Collection
}

func (f *fakeResolver) FacetValues(_ context.Context, ids []string) ([]domain.FacetValue, error) {
	var out []domain.FacetValue
	for _, id := range ids {
		if v, ok := f.facetValues[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeResolver) Collections(_ context.Context, ids []string) ([]domain.Collection, error) {
	var out []domain.Collection
	for _, id := range ids {
		if c, ok := f.collections[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type capturingEnqueuer struct {
	tasks []domain.Task
}

func (e *capturingEnqueuer) Enqueue(_ context.Context, task domain.Task) error {
	e.tasks = append(e.tasks, task)
	return nil
}

func session() *domain.SessionContext {
	return &domain.SessionContext{
		ChannelID:    "ch-1",
		LanguageCode: "en",
		CurrencyCode: "USD",
		ActorID:      "admin-1",
	}
}

func seed(t *testing.T, engine *memory.Store, rows ...domain.IndexRow) {
	t.Helper()
	require.NoError(t, engine.Upsert(context.Background(), rows))
}

func indexRow(variantID, productID string, mut func(*domain.IndexRow)) domain.IndexRow {
	r := domain.IndexRow{
		ProductVariantID: variantID,
		LanguageCode:     "en",
		ChannelID:        "ch-1",
		ProductID:        productID,
		Enabled:          true,
		ProductName:      "Product",
		SKU:              "SKU-" + variantID,
		Price:            1000,
		CurrencyCode:     "USD",
	}
	if mut != nil {
		mut(&r)
	}
	return r
}

func newService(engine *memory.Store, resolver *fakeResolver, queue *capturingEnqueuer) (*SearchService, *jobstore.MemoryStore) {
	jobs := jobstore.NewMemoryStore()
	if resolver == nil {
		resolver = &fakeResolver{}
	}
	if queue == nil {
		queue = &capturingEnqueuer{}
	}
	svc := NewSearchService(engine, resolver, queue, jobs, testSecret, slog.New(slog.DiscardHandler))
	return svc, jobs
}

func TestSearch_ScopesToSessionAndFiltersDisabledOnPublicView(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	seed(t, engine,
		indexRow("v-1", "p-1", nil),
		indexRow("v-2", "p-2", func(r *domain.IndexRow) { r.Enabled = false }),
		indexRow("v-3", "p-3", func(r *domain.IndexRow) { r.ChannelID = "ch-2" }),
	)
	svc, _ := newService(engine, nil, nil)

	q := &domain.SearchQuery{ChannelID: "ch-2"} // caller-sent scope is ignored
	resp, err := svc.Search(ctx, session(), q, true)
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "v-1", resp.Items[0].ProductVariantID)
	assert.Equal(t, 1, resp.TotalItems)

	resp, err = svc.Search(ctx, session(), &domain.SearchQuery{}, false)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 2, "privileged view sees disabled rows")
}

func TestSearch_TotalIgnoresPagination(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	rows := make([]domain.IndexRow, 0, 30)
	for i := 0; i < 30; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		rows = append(rows, indexRow("v-"+id, "p-"+id, nil))
	}
	seed(t, engine, rows...)
	svc, _ := newService(engine, nil, nil)

	resp, err := svc.Search(ctx, session(), &domain.SearchQuery{Take: 10}, true)
	require.NoError(t, err)
	assert.Len(t, resp.Items, 10)
	assert.Equal(t, 30, resp.TotalItems)
}

func TestFacetValues_PublicViewHidesPrivateFacets(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	seed(t, engine,
		indexRow("v-1", "p-1", func(r *domain.IndexRow) { r.FacetValueIDs = "1,2" }),
		indexRow("v-2", "p-2", func(r *domain.IndexRow) { r.FacetValueIDs = "1" }),
	)
	resolver := &fakeResolver{facetValues: map[string]domain.FacetValue{
		"1": {ID: "1", Name: "Blue", Code: "blue", FacetID: "color"},
		"2": {ID: "2", Name: "Clearance", Code: "clearance", FacetID: "internal", FacetPrivate: true},
	}}
	svc, _ := newService(engine, resolver, nil)

	counts, err := svc.FacetValues(ctx, session(), &domain.SearchQuery{}, true)
	require.NoError(t, err)
	require.Len(t, counts, 1, "private facet values are omitted, not zeroed")
	assert.Equal(t, "Blue", counts[0].FacetValue.Name)
	assert.Equal(t, 2, counts[0].Count)

	counts, err = svc.FacetValues(ctx, session(), &domain.SearchQuery{}, false)
	require.NoError(t, err)
	assert.Len(t, counts, 2, "privileged view sees private facets")
	assert.Equal(t, 2, counts[0].Count, "ordered by count, highest first")
}

func TestCollections_ResolvesAndCounts(t *testing.T) {
	ctx := context.Background()
	engine := memory.New()
	seed(t, engine,
		indexRow("v-1", "p-1", func(r *domain.IndexRow) { r.CollectionIDs = "c-1,c-2" }),
		indexRow("v-2", "p-2", func(r *domain.IndexRow) { r.CollectionIDs = "c-1" }),
	)
	resolver := &fakeResolver{collections: map[string]domain.Collection{
		"c-1": {ID: "c-1", Name: "Summer", Slug: "summer"},
		"c-2": {ID: "c-2", Name: "Winter", Slug: "winter"},
	}}
	svc, _ := newService(engine, resolver, nil)

	counts, err := svc.Collections(ctx, session(), &domain.SearchQuery{}, true)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "Summer", counts[0].Collection.Name)
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, 1, counts[1].Count)
}

func TestFacetValues_EmptyResultSet(t *testing.T) {
	svc, _ := newService(memory.New(), nil, nil)
	counts, err := svc.FacetValues(context.Background(), session(), &domain.SearchQuery{}, true)
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.NotNil(t, counts)
}

func TestReindex_CreatesJobAndEnqueuesSignedTask(t *testing.T) {
	ctx := context.Background()
	queue := &capturingEnqueuer{}
	svc, jobs := newService(memory.New(), nil, queue)

	job, err := svc.Reindex(ctx, session())
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatePending, job.State)

	require.Len(t, queue.tasks, 1)
	task := queue.tasks[0]
	assert.Equal(t, domain.TaskReindex, task.Type)
	assert.Equal(t, job.ID, task.JobID)

	sc, err := domain.VerifySession(testSecret, task.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "ch-1", sc.ChannelID)
	assert.Equal(t, "en", sc.LanguageCode)

	stored, err := jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}
