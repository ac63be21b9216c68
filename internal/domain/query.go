package domain

// Pagination and matching defaults shared by every search strategy.
const (
	DefaultTake = 25
	MaxTake     = 100

	// MinTermLength is the shortest term that participates in matching.
	// Shorter terms are treated as "no term filter", not as an error.
	MinTermLength = 2
)

// Relative field weights for term matching. Every strategy must preserve the
// ordering sku > product name > variant name > description.
const (
	WeightSKU         = 10.0
	WeightProductName = 2.0
	WeightVariantName = 1.5
	WeightDescription = 1.0
)

// SortDirection is an explicit sort direction for a sortable column.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// SortSpec holds the optional explicit sort of a query. When either field is
// set it takes precedence over relevance ordering.
type SortSpec struct {
	Name  SortDirection `json:"name,omitempty"`
	Price SortDirection `json:"price,omitempty"`
}

// IsZero reports whether no explicit sort was requested.
func (s SortSpec) IsZero() bool {
	return s.Name == "" && s.Price == ""
}

// SearchQuery is the filter input consumed by the search strategies. The
// language and channel scope always come from the session context, never
// from the caller.
type SearchQuery struct {
	Term           string   `json:"term,omitempty"`
	FacetValueIDs  []string `json:"facet_value_ids,omitempty"`
	CollectionID   string   `json:"collection_id,omitempty"`
	CollectionSlug string   `json:"collection_slug,omitempty"`
	GroupByProduct bool     `json:"group_by_product,omitempty"`
	Sort           SortSpec `json:"sort,omitempty"`
	Take           int      `json:"take,omitempty"`
	Skip           int      `json:"skip,omitempty"`

	LanguageCode string `json:"-"`
	ChannelID    string `json:"-"`
}

// EffectiveTerm returns the term if it meets the minimum length, else "".
func (q *SearchQuery) EffectiveTerm() string {
	if len(q.Term) < MinTermLength {
		return ""
	}
	return q.Term
}

// EffectiveTake returns the page size clamped to [1, MaxTake], defaulting to
// DefaultTake.
func (q *SearchQuery) EffectiveTake() int {
	if q.Take <= 0 {
		return DefaultTake
	}
	if q.Take > MaxTake {
		return MaxTake
	}
	return q.Take
}

// EffectiveSkip returns the offset, floored at 0.
func (q *SearchQuery) EffectiveSkip() int {
	if q.Skip < 0 {
		return 0
	}
	return q.Skip
}

// PriceRange is the (min, max) pair a grouped query exposes instead of a
// single price.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// SearchResultRow is one row of a search result. In grouped mode PriceRange
// and PriceWithTaxRange are set; otherwise Price and PriceWithTax are.
type SearchResultRow struct {
	ProductID         string      `json:"product_id"`
	ProductVariantID  string      `json:"product_variant_id"`
	ProductName       string      `json:"product_name"`
	VariantName       string      `json:"product_variant_name"`
	Description       string      `json:"description"`
	Slug              string      `json:"slug"`
	SKU               string      `json:"sku"`
	Enabled           bool        `json:"enabled"`
	CurrencyCode      string      `json:"currency_code"`
	Price             int64       `json:"price,omitempty"`
	PriceWithTax      int64       `json:"price_with_tax,omitempty"`
	PriceRange        *PriceRange `json:"price_range,omitempty"`
	PriceWithTaxRange *PriceRange `json:"price_with_tax_range,omitempty"`
	FacetIDs          []string    `json:"facet_ids"`
	FacetValueIDs     []string    `json:"facet_value_ids"`
	CollectionIDs     []string    `json:"collection_ids"`
	ProductPreview    string      `json:"product_preview"`
	VariantPreview    string      `json:"product_variant_preview"`
	Score             float64     `json:"score"`
}

// SearchResponse is the paginated result list with the unpaginated total.
type SearchResponse struct {
	Items      []SearchResultRow `json:"items"`
	TotalItems int               `json:"total_items"`
}

// FacetValueCount pairs a resolved facet value with its occurrence count in
// the current result set.
type FacetValueCount struct {
	FacetValue FacetValue `json:"facet_value"`
	Count      int        `json:"count"`
}

// CollectionCount pairs a resolved collection with its occurrence count.
type CollectionCount struct {
	Collection Collection `json:"collection"`
	Count      int        `json:"count"`
}

// FacetValue is the catalog-resolved form of a facet value identifier.
type FacetValue struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	FacetID string `json:"facet_id"`

	// FacetPrivate marks values belonging to a private facet; the public
	// search path filters these out.
	FacetPrivate bool `json:"-"`
}

// Collection is the catalog-resolved form of a collection identifier.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}
