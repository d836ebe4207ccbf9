package api

import (
	"net/http"

	mw "github.com/craterhq/crater/internal/api/middleware"
	"github.com/craterhq/crater/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler       http.HandlerFunc
	ReportHandler       http.HandlerFunc
	ListIssuesHandler   http.HandlerFunc
	GetIssueHandler     http.HandlerFunc
	ResolveIssueHandler http.HandlerFunc
	IgnoreIssueHandler  http.HandlerFunc
	CreateKeyHandler    http.HandlerFunc
	ListKeysHandler     http.HandlerFunc
	RevokeKeyHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/events", orNotImplemented(deps.ReportHandler))

		r.Get("/api/v1/issues", orNotImplemented(deps.ListIssuesHandler))
		r.Get("/api/v1/issues/{issueID}", orNotImplemented(deps.GetIssueHandler))
		r.Post("/api/v1/issues/{issueID}/resolve", orNotImplemented(deps.ResolveIssueHandler))
		r.Post("/api/v1/issues/{issueID}/ignore", orNotImplemented(deps.IgnoreIssueHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

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
