package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopforge/catalogsearch/internal/domain"
	"github.com/shopforge/catalogsearch/internal/service"
	"github.com/shopforge/catalogsearch/pkg/httputil"
	"github.com/shopforge/catalogsearch/pkg/middleware"
	"github.com/shopforge/catalogsearch/pkg/validator"
)

// Scope headers. Storefronts pin their channel and language per request;
// anything missing falls back to the instance defaults.
const (
	ChannelHeader  = "X-Channel-Id"
	LanguageHeader = "X-Language-Code"
)

// Defaults is the instance-wide scope applied when a request does not name
// its channel or language.
type Defaults struct {
	ChannelID    string
	LanguageCode string
	CurrencyCode string
}

// SearchHandler handles HTTP requests for the search endpoints.
type SearchHandler struct {
	service  *service.SearchService
	defaults Defaults
	logger   *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, defaults Defaults, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service:  svc,
		defaults: defaults,
		logger:   logger,
	}
}

// --- Request DTOs ---

// SortRequest selects an explicit column sort. At most one direction is
// honored; name wins over price when both are set.
type SortRequest struct {
	Name  string `json:"name" validate:"omitempty,oneof=ASC DESC"`
	Price string `json:"price" validate:"omitempty,oneof=ASC DESC"`
}

// SearchRequest is the JSON request body for the privileged search and count
// endpoints.
type SearchRequest struct {
	Term           string      `json:"term"`
	FacetValueIDs  []string    `json:"facet_value_ids" validate:"omitempty,max=50,dive,required"`
	CollectionID   string      `json:"collection_id"`
	CollectionSlug string      `json:"collection_slug"`
	GroupByProduct bool        `json:"group_by_product"`
	Sort           SortRequest `json:"sort"`
	Take           int         `json:"take" validate:"gte=0,lte=100"`
	Skip           int         `json:"skip" validate:"gte=0"`
}

func (req *SearchRequest) toQuery() *domain.SearchQuery {
	return &domain.SearchQuery{
		Term:           strings.TrimSpace(req.Term),
		FacetValueIDs:  req.FacetValueIDs,
		CollectionID:   req.CollectionID,
		CollectionSlug: req.CollectionSlug,
		GroupByProduct: req.GroupByProduct,
		Sort: domain.SortSpec{
			Name:  domain.SortDirection(req.Sort.Name),
			Price: domain.SortDirection(req.Sort.Price),
		},
		Take: req.Take,
		Skip: req.Skip,
	}
}

// session builds the request's session scope. The channel and language come
// from the scope headers with instance defaults as fallback; the actor is
// whatever the auth middleware verified (empty on the public routes).
func (h *SearchHandler) session(r *http.Request) *domain.SessionContext {
	sc := &domain.SessionContext{
		ChannelID:    strings.TrimSpace(r.Header.Get(ChannelHeader)),
		LanguageCode: strings.TrimSpace(r.Header.Get(LanguageHeader)),
		CurrencyCode: h.defaults.CurrencyCode,
		ActorID:      middleware.ActorIDFromContext(r.Context()),
		Permissions:  middleware.PermissionsFromContext(r.Context()),
	}
	if sc.ChannelID == "" {
		sc.ChannelID = h.defaults.ChannelID
	}
	if sc.LanguageCode == "" {
		sc.LanguageCode = h.defaults.LanguageCode
	}
	return sc
}

// queryFromParams parses the public GET query string into a search query.
func queryFromParams(r *http.Request) (*domain.SearchQuery, bool, string) {
	params := r.URL.Query()

	q := &domain.SearchQuery{
		Term:           strings.TrimSpace(params.Get("term")),
		CollectionID:   params.Get("collection_id"),
		CollectionSlug: params.Get("collection_slug"),
	}

	if v := params.Get("facet_value_ids"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				q.FacetValueIDs = append(q.FacetValueIDs, id)
			}
		}
	}
	if v := params.Get("group_by_product"); v != "" {
		grouped, err := strconv.ParseBool(v)
		if err != nil {
			return nil, false, "group_by_product must be a boolean"
		}
		q.GroupByProduct = grouped
	}

	switch v := params.Get("sort_name"); v {
	case "", string(domain.SortAsc), string(domain.SortDesc):
		q.Sort.Name = domain.SortDirection(v)
	default:
		return nil, false, "sort_name must be ASC or DESC"
	}
	switch v := params.Get("sort_price"); v {
	case "", string(domain.SortAsc), string(domain.SortDesc):
		q.Sort.Price = domain.SortDirection(v)
	default:
		return nil, false, "sort_price must be ASC or DESC"
	}

	if v := params.Get("take"); v != "" {
		take, err := strconv.Atoi(v)
		if err != nil || take < 0 || take > domain.MaxTake {
			return nil, false, "take must be an integer between 0 and 100"
		}
		q.Take = take
	}
	if v := params.Get("skip"); v != "" {
		skip, err := strconv.Atoi(v)
		if err != nil || skip < 0 {
			return nil, false, "skip must be a non-negative integer"
		}
		q.Skip = skip
	}

	return q, true, ""
}

func writeParamError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: message},
	})
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (*domain.SearchQuery, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return nil, false
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return nil, false
	}
	return req.toQuery(), true
}

// --- Public handlers ---

// Search handles GET /api/v1/search. Only enabled products and variants are
// visible here.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, ok, msg := queryFromParams(r)
	if !ok {
		writeParamError(w, msg)
		return
	}

	result, err := h.service.Search(r.Context(), h.session(r), q, true)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// FacetValues handles GET /api/v1/search/facet-values. Values belonging to
// private facets are omitted.
func (h *SearchHandler) FacetValues(w http.ResponseWriter, r *http.Request) {
	q, ok, msg := queryFromParams(r)
	if !ok {
		writeParamError(w, msg)
		return
	}

	counts, err := h.service.FacetValues(r.Context(), h.session(r), q, true)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"facet_values": counts}})
}

// Collections handles GET /api/v1/search/collections.
func (h *SearchHandler) Collections(w http.ResponseWriter, r *http.Request) {
	q, ok, msg := queryFromParams(r)
	if !ok {
		writeParamError(w, msg)
		return
	}

	counts, err := h.service.Collections(r.Context(), h.session(r), q, true)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"collections": counts}})
}

// --- Admin handlers ---

// AdminSearch handles POST /api/v1/admin/search. Disabled rows are included
// so operators can inspect the whole index.
func (h *SearchHandler) AdminSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	result, err := h.service.Search(r.Context(), h.session(r), q, false)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// AdminFacetValues handles POST /api/v1/admin/search/facet-values.
func (h *SearchHandler) AdminFacetValues(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	counts, err := h.service.FacetValues(r.Context(), h.session(r), q, false)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"facet_values": counts}})
}

// AdminCollections handles POST /api/v1/admin/search/collections.
func (h *SearchHandler) AdminCollections(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	counts, err := h.service.Collections(r.Context(), h.session(r), q, false)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"collections": counts}})
}

// Reindex handles POST /api/v1/admin/search/reindex. The rebuild itself runs
// on the task queue; the response carries the job to poll.
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Reindex(r.Context(), h.session(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: job})
}

// Job handles GET /api/v1/admin/search/jobs/{id}.
func (h *SearchHandler) Job(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: job})
}
