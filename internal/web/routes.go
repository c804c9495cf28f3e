package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/ar-marker/internal/web/handlers"
	"github.com/kozaktomas/ar-marker/internal/web/middleware"
)

// requestTimeout bounds plain request/response routes; websocket sessions
// are excluded.
const requestTimeout = 5 * time.Minute

func (s *Server) setupRoutes() {
	projectsHandler := handlers.NewProjectsHandler(s.deps.Projects, s.deps.Ingester)
	matchHandler := handlers.NewMatchHandler(s.deps.Engine, s.config.Matching.Interval)
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Engine)
	assetStoreHandler := handlers.NewAssetStoreHandler(s.deps.AssetStore)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Capture sessions are long-lived.
		r.Get("/sessions/ws", s.sessions.Serve)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Public: the capture client reads projects and matches frames
			r.Get("/projects", projectsHandler.List)
			r.Get("/projects/{id}", projectsHandler.Get)
			r.Post("/match", matchHandler.Match)
			r.Get("/config", configHandler.Get)

			// Mutations require a bearer token
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireToken(s.deps.Verifier))

				r.Post("/projects", projectsHandler.Create)
				r.Delete("/projects", projectsHandler.Delete)
				r.Delete("/projects/{id}", projectsHandler.DeleteByID)
				r.Get("/assetstore/status", assetStoreHandler.Status)
			})
		})
	})
}
