package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only routes
		r.Get("/health", h.Health)
		r.Get("/coverage", h.Coverage)
		r.Get("/coverage/next", h.NextGoals)
		r.Get("/quality/status", h.QualityStatus)
		r.Get("/audit/summary", h.AuditSummary)

		// Mutating routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Post("/quality/trigger", h.QualityTrigger)
			r.Post("/quality/stop", h.QualityStop)
		})
	})

	return r
}
