package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shopforge/catalogsearch/pkg/errors"
)

type plainDoer struct{}

func (plainDoer) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return http.DefaultClient.Do(req.WithContext(ctx))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, plainDoer{}, slog.New(slog.DiscardHandler))
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func TestProduct_DecodesEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/p-1", r.URL.Path)
		writeData(w, ProductSnapshot{
			ID:      "p-1",
			Name:    "Laptop Stand",
			Slug:    "laptop-stand",
			Enabled: true,
			Variants: []VariantSnapshot{
				{ID: "v-1", ProductID: "p-1", SKU: "LS-01", Price: 1000},
			},
			Translations: map[string]Translation{
				"de": {Name: "Laptopständer", Slug: "laptopstaender"},
			},
		})
	}))

	p, err := c.Product(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Laptop Stand", p.Name)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "LS-01", p.Variants[0].SKU)

	de := p.TranslationFor("de")
	assert.Equal(t, "Laptopständer", de.Name)
	assert.Equal(t, "laptopstaender", de.Slug)

	fr := p.TranslationFor("fr")
	assert.Equal(t, "Laptop Stand", fr.Name, "missing translation falls back to defaults")
}

func TestProduct_NotFoundMapsToAppError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "NOT_FOUND", "message": "product p-x not found"},
		})
	}))

	_, err := c.Product(context.Background(), "p-x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestVariants_BatchesIDsAndSkipsEmptyInput(t *testing.T) {
	var gotIDs string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		writeData(w, []VariantSnapshot{
			{ID: "v-1", ProductID: "p-1"},
			{ID: "v-3", ProductID: "p-2"},
		})
	}))

	out, err := c.Variants(context.Background(), []string{"v-1", "v-2", "v-3"})
	require.NoError(t, err)
	assert.Equal(t, "v-1,v-2,v-3", gotIDs)
	assert.Len(t, out, 2, "unknown ids are absent, not errors")

	out, err = c.Variants(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out, "no ids means no request")
}

func TestProducts_Pagination(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		writeData(w, ProductPage{
			Items:      []ProductSnapshot{{ID: "p-101"}},
			TotalItems: 101,
		})
	}))

	page, err := c.Products(context.Background(), 3, 50)
	require.NoError(t, err)
	assert.Equal(t, 101, page.TotalItems)
	require.Len(t, page.Items, 1)
}
