package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/selfie-search/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Health check and metrics (no auth required)
	s.router.Get("/api/v1/health", s.health.Check)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1/face", func(r chi.Router) {
		// Anonymous visitors may search; a signed-in visitor also gets a stored profile.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(s.auth))
			r.Post("/search", s.faces.Search)
			r.Get("/profile", s.faces.Profile)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.auth))
			r.Post("/recall", s.faces.Recall)
		})
	})
}
