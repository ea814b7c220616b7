package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/posledger/pkg/health"
	"github.com/utafrali/posledger/pkg/middleware"
)

// RouterConfig holds the HTTP options that come from configuration.
type RouterConfig struct {
	ServiceName string
	CORS        middleware.CORSConfig
	// PprofCIDRs enables /debug/pprof for these networks when non-empty.
	PprofCIDRs []string
	// WriteLimit throttles stock-changing requests per till.
	WriteLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all ledger routes registered.
func NewRouter(
	checkout CheckoutService,
	ledger LedgerService,
	catalog CatalogService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	limitWrites := middleware.RateLimit(cfg.WriteLimit, logger)

	sales := NewSaleHandler(checkout, logger)
	products := NewProductHandler(catalog, ledger, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", products.CreateProduct)
			r.Get("/", products.ListProducts)

			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", products.GetProduct)
				r.Get("/stock", products.GetStock)
				r.With(limitWrites).Put("/stock", products.CorrectStock)
				r.Get("/batches", products.ListBatches)
				r.With(limitWrites).Post("/batches", products.ReceiveStock)
				r.Get("/movements", products.ListMovements)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", products.CreateCategory)
			r.Get("/", products.ListCategories)
		})

		r.Route("/sales", func(r chi.Router) {
			r.With(limitWrites).Post("/", sales.Checkout)
			r.Get("/", sales.ListSales)
			r.Get("/{saleId}", sales.GetSale)
		})
	})

	return r
}
