/*
server.go - HTTP router and middleware for the admin surface

ROUTER: chi, with the standard Logger/Recoverer/RequestID stack and CORS
open for local tooling. Route definitions only; handler logic lives in
handlers.go.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the admin router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/entries", h.GetEntries)
			r.Get("/{id}/session", h.GetSession)
		})

		r.Get("/catalog", h.GetCatalog)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/credit", h.Credit)
			r.Post("/bonus/run", h.RunBonus)
		})

		r.Get("/health", h.Health)
	})

	return r
}
