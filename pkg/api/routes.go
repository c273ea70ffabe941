package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/webhooks", func(r chi.Router) {
		if s.cfg.Server.RateLimit.Enabled {
			r.Use(s.rateLimitMiddleware(s.cfg.Server.RateLimit))
		}

		r.Post("/github", s.handleGitHubWebhook)
		r.Post("/gitlab", s.handleGitLabWebhook)
	})

	// Read-only ledger views. All access goes through the store's typed
	// accessors, never raw queries.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/copr-builds/{id}", s.handleGetCoprBuild)
		r.Get("/koji-builds/{id}", s.handleGetKojiBuild)
		r.Get("/testing-farm/{pipeline_id}", s.handleGetTestingFarmRun)
		r.Get("/tasks", s.handleListTaskResults)
		r.Get("/installations", s.handleListInstallations)
	})

	return r
}
