// Package api exposes the token service REST surface: issuance, validation,
// and revocation of opaque session tokens, with per-endpoint rate limiting.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/tokengate/tokengate/store"
	"github.com/tokengate/tokengate/users"
)

//go:embed openapi.yaml
var openapiSpec []byte

// API holds the dependencies needed by the REST handlers.
type API struct {
	tokens store.Backend
	dir    users.Directory
	audit  *auditLogger

	issueInterval    time.Duration
	validateInterval time.Duration
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events. If not set, a
// default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithRateIntervals overrides the per-endpoint minimum request intervals.
func WithRateIntervals(issue, validate time.Duration) Option {
	return func(a *API) {
		a.issueInterval = issue
		a.validateInterval = validate
	}
}

// New creates a new API instance over the given token store (normally the
// failover delegator) and user directory.
func New(tokens store.Backend, dir users.Directory, opts ...Option) *API {
	a := &API{
		tokens:           tokens,
		dir:              dir,
		issueInterval:    time.Second,
		validateInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.With(a.rateLimit(a.issueInterval, identityFromBody)).
		Post("/v1/tokens/issue", a.Issue)
	r.With(a.rateLimit(a.validateInterval, identityFromToken)).
		Get("/v1/tokens/validate", a.Validate)
	r.Delete("/v1/tokens/revoke", a.Revoke)

	return r
}
