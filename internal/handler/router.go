package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/msafonov/merchant-insights/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware аналитического сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/insights", h.GetInsights)
		r.Get("/insights/marketing", h.GetMarketingInsights)
		r.Get("/insights/pricing", h.GetPricingSignals)

		r.Get("/inventory/summary", h.GetInventorySummary)
		r.Get("/inventory/low-stock", h.GetLowStock)
		r.Get("/inventory/dead-stock", h.GetDeadStock)

		r.Post("/advisor/ask", h.AskAdvisor)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
