package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillminer/memoryd/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	if g.httpMetrics != nil {
		r.Use(g.httpMetrics.middleware)
	}

	// Public: no auth.
	r.Get("/health", g.handleHealth())
	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(g.authMiddleware)
		}
		r.Get("/status", g.handleStatus())

		r.Route("/api", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(g.limit(security.BucketRead))
				r.Post("/context", g.handleBuildContext())
				r.Get("/sessions", g.handleListSessions())
				r.Get("/sessions/{id}", g.handleGetSession())
				r.Get("/owners/{owner}/memories", g.handleListMemories())
				if g.events != nil {
					r.Get("/events", g.handleEvents())
				}
			})
			r.Group(func(r chi.Router) {
				r.Use(g.limit(security.BucketWrite))
				r.Post("/turns", g.handleUpdateAfterTurn())
				r.Delete("/sessions/{id}", g.handleDeleteSession())
				r.Delete("/owners/{owner}/memories", g.handleForgetOwner())
				r.Delete("/owners/{owner}/turns/{turn}", g.handleForgetTurn())
				r.Post("/backfill", g.handleBackfill())
				if g.scheduler != nil {
					r.Post("/jobs/{name}/run", g.handleRunJob())
				}
			})
		})
	})

	return r
}
