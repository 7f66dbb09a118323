package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/segmenter/internal/api/middleware"
	"github.com/kiranshivaraju/segmenter/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc
	StateHandler  http.HandlerFunc
	SelectHandler http.HandlerFunc
	SubmitHandler http.HandlerFunc
	HandleHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Get("/api/v1/state", orNotImplemented(deps.StateHandler))
	r.Post("/api/v1/selection", orNotImplemented(deps.SelectHandler))
	r.Post("/api/v1/jobs", orNotImplemented(deps.SubmitHandler))
	r.Get("/api/v1/handles/{handleID}", orNotImplemented(deps.HandleHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
