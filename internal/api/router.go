package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/casetree/internal/caseservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *caseservice.Service, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/cases", h.ListCases)
	r.Route("/cases/{case}", func(r chi.Router) {
		r.Delete("/", h.DeleteCase)
		r.Get("/records/{id}", h.GetRecord)
		r.Get("/digests", h.DigestGroups)
		r.Post("/ancestors", h.Ancestors)
		r.Post("/partition", h.Partition)
		r.Post("/dedupe", h.Dedupe)
		r.Post("/neighbors", h.Neighbors)
	})

	r.Put("/manifests/*", h.PutManifest)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
