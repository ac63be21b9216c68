package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopforge/catalogsearch/internal/service"
	"github.com/shopforge/catalogsearch/pkg/health"
	"github.com/shopforge/catalogsearch/pkg/middleware"
)

// Permissions required by the admin routes.
const (
	PermissionReadCatalog   = "catalog:read"
	PermissionUpdateCatalog = "catalog:update"
)

// NewRouter creates a chi router with all search routes registered.
func NewRouter(
	searchService *service.SearchService,
	defaults Defaults,
	validateToken middleware.TokenValidator,
	healthHandler *health.Handler,
	corsConfig middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("catalogsearch"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	searchHandler := NewSearchHandler(searchService, defaults, logger)

	// Public storefront endpoints
	r.Route("/api/v1/search", func(r chi.Router) {
		r.Get("/", searchHandler.Search)
		r.Get("/facet-values", searchHandler.FacetValues)
		r.Get("/collections", searchHandler.Collections)
	})

	// Admin endpoints
	r.Route("/api/v1/admin/search", func(r chi.Router) {
		r.Use(middleware.Auth(validateToken))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(PermissionReadCatalog))
			r.Post("/", searchHandler.AdminSearch)
			r.Post("/facet-values", searchHandler.AdminFacetValues)
			r.Post("/collections", searchHandler.AdminCollections)
			r.Get("/jobs/{id}", searchHandler.Job)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(PermissionUpdateCatalog))
			r.Post("/reindex", searchHandler.Reindex)
		})
	})

	return r
}
