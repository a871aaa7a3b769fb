package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Playbook reads.
	r.Get("/playbook", h.ListFiles)
	r.Get("/playbook/{file}", h.GetFile)
	r.Get("/playbook/{file}/sections/{id}", h.GetSection)

	// Derived views.
	r.Get("/stats", h.Stats)
	r.Get("/deltas", h.Deltas)
	r.Get("/context", h.Context)

	// Turn pipeline entry for the external simulator.
	r.Post("/turn", h.RunTurn)

	// Update feed (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
