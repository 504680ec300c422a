// Package httptransport exposes the gateway's FHIR REST surface.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pseudonym-gateway/internal/platform/middleware"
	"pseudonym-gateway/internal/sanitizer"
)

// NewRouter wires every route behind the sanitizer so no response, including
// errors and unmatched routes, can carry Patient extensions.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(h.requestTimeout))
	r.Use(sanitizer.Middleware(h.logger))
	r.Use(middleware.LatencyMiddleware(h.metrics))

	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleMethodNotAllowed)

	r.Get("/healthz", h.handleHealth)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.Route("/fhir", func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Get("/ImagingStudy", h.handleSearchStudies)
		r.Get("/ImagingStudy/_search", h.handleSearchStudies)
		r.Post("/ImagingStudy/_search", h.handleSearchStudies)

		r.Get("/Patient", h.handleSearchPatients)
		r.Get("/Patient/_search", h.handleSearchPatients)
		r.Post("/Patient/_search", h.handleSearchPatients)
		r.Get("/Patient/{id}", h.handleReadPatient)

		if h.enableCreate {
			r.Post("/Patient", h.handleCreatePatient)
			r.Post("/ImagingStudy", h.handleCreateStudy)
		}
	})

	return r
}
