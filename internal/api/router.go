package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/paravault/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// snapshotPath is the SQLite file POST /snapshot writes; empty disables it.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler, snapshotPath string) chi.Router {
	h := NewHandler(svc, snapshotPath)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Patch("/notes/*", h.PatchNote)
	r.Put("/notes/*", h.ReplaceNote)
	r.Delete("/notes/*", h.DeleteNote)
	r.Post("/move", h.MoveNote)

	// Search.
	r.Get("/search", h.Search)

	// Graph.
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/forward/*", h.ForwardLinks)
	r.Get("/neighborhood/*", h.Neighborhood)
	r.Get("/links/broken", h.BrokenLinks)
	r.Get("/orphans", h.Orphans)
	r.Get("/stats", h.Stats)

	// Maintenance.
	r.Post("/reindex", h.Reindex)
	r.Post("/sync", h.Sync)
	r.Get("/snapshot", h.Snapshot)
	r.Post("/snapshot", h.ExportSnapshot)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
