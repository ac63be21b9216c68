// Package catalog is the read client for the catalog service. The indexer
// pulls product and variant snapshots through it when building index rows,
// and the search facade resolves facet value and collection ids through it
// when shaping responses.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/pkg/httpclient"
)

// HTTPDoer abstracts the circuit-breaker client so tests can use httptest
// servers through a plain client.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client fetches catalog state over HTTP.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger
}

func NewClient(baseURL string, doer HTTPDoer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
		logger:  logger,
	}
}

// Translation is the per-language naming of a product or variant.
type Translation struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// VariantSnapshot is the indexable state of one product variant.
type VariantSnapshot struct {
	ID              string                 `json:"id"`
	ProductID       string                 `json:"product_id"`
	SKU             string                 `json:"sku"`
	Name            string                 `json:"name"`
	Enabled         bool                   `json:"enabled"`
	Price           int64                  `json:"price"`
	PriceWithTax    int64                  `json:"price_with_tax"`
	CurrencyCode    string                 `json:"currency_code"`
	FacetValueIDs   []string               `json:"facet_value_ids"`
	FacetIDs        []string               `json:"facet_ids"`
	CollectionIDs   []string               `json:"collection_ids"`
	CollectionSlugs []string               `json:"collection_slugs"`
	AssetID         string                 `json:"asset_id,omitempty"`
	Preview         string                 `json:"preview,omitempty"`
	ChannelIDs      []string               `json:"channel_ids"`
	Translations    map[string]Translation `json:"translations,omitempty"`
}

// NameFor returns the variant name for a language, falling back to the
// default name.
func (v *VariantSnapshot) NameFor(languageCode string) string {
	if t, ok := v.Translations[languageCode]; ok && t.Name != "" {
		return t.Name
	}
	return v.Name
}

// ProductSnapshot is the indexable state of one product and its variants.
type ProductSnapshot struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Slug          string                 `json:"slug"`
	Description   string                 `json:"description"`
	Enabled       bool                   `json:"enabled"`
	FacetValueIDs []string               `json:"facet_value_ids"`
	FacetIDs      []string               `json:"facet_ids"`
	AssetID       string                 `json:"asset_id,omitempty"`
	Preview       string                 `json:"preview,omitempty"`
	ChannelIDs    []string               `json:"channel_ids"`
	Translations  map[string]Translation `json:"translations,omitempty"`
	Variants      []VariantSnapshot      `json:"variants"`
}

// TranslationFor returns the product naming for a language, falling back to
// the default fields.
func (p *ProductSnapshot) TranslationFor(languageCode string) Translation {
	if t, ok := p.Translations[languageCode]; ok && t.Name != "" {
		if t.Slug == "" {
			t.Slug = p.Slug
		}
		return t
	}
	return Translation{Name: p.Name, Slug: p.Slug, Description: p.Description}
}

// ProductPage is one page of the catalog's product listing.
type ProductPage struct {
	Items      []ProductSnapshot `json:"items"`
	TotalItems int               `json:"total_items"`
}

// envelope mirrors the catalog service's response wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "catalog")
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode catalog response %s: %w", path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode catalog payload %s: %w", path, err)
	}
	return nil
}

// Product fetches one product with its variants.
func (c *Client) Product(ctx context.Context, productID string) (*ProductSnapshot, error) {
	var p ProductSnapshot
	if err := c.get(ctx, "/api/v1/products/"+url.PathEscape(productID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Variants fetches variant snapshots by id. Unknown ids are absent from the
// result, not errors: a variant deleted between event and task is expected.
func (c *Client) Variants(ctx context.Context, variantIDs []string) ([]VariantSnapshot, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": {strings.Join(variantIDs, ",")}}
	var out []VariantSnapshot
	if err := c.get(ctx, "/api/v1/product-variants", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Products fetches one page of the full product listing, for rebuilds.
func (c *Client) Products(ctx context.Context, page, pageSize int) (*ProductPage, error) {
	q := url.Values{
		"page":      {strconv.Itoa(page)},
		"page_size": {strconv.Itoa(pageSize)},
	}
	var out ProductPage
	if err := c.get(ctx, "/api/v1/products", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FacetValues resolves facet value ids to their display form.
func (c *Client) FacetValues(ctx context.Context, ids []string) ([]domain.FacetValue, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out []domain.FacetValue
	if err := c.get(ctx, "/api/v1/facet-values", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Collections resolves collection ids to their display form.
func (c *Client) Collections(ctx context.Context, ids []string) ([]domain.Collection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{"ids": {strings.Join(ids, ",")}}
	var out []domain.Collection
	if err := c.get(ctx, "/api/v1/collections", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
