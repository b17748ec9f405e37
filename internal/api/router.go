// Package api exposes the console's HTTP surface: view sessions driving
// filter engines, the request-log store endpoints, and metrics.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pysugar/nexus-console/internal/logging"
	"github.com/pysugar/nexus-console/internal/logstore"
)

// RouterOptions bundles the router's collaborators.
type RouterOptions struct {
	Store    *logstore.Store
	Registry *Registry

	// APIToken guards the log ingest/search endpoints when non-empty.
	APIToken string

	// AdminPassword guards the console endpoints via basic auth when
	// non-empty.
	AdminPassword string
}

// NewRouter wires up the full console router.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/version", VersionHandler())

	// Log store: ingest and search, called by the gateway and by remote
	// consoles. Bearer-token protected when a token is configured.
	r.Route("/api/request-logs", func(r chi.Router) {
		r.Use(requireBearer(opts.APIToken))
		r.Post("/", IngestLogHandler(opts.Store))
		r.Get("/", ListLogsHandler(opts.Store))
		r.Post("/search", SearchLogsHandler(opts.Store))
		r.Get("/stats", LogStatsHandler(opts.Store))
		r.Delete("/", ClearLogsHandler(opts.Store))
	})

	// View sessions: the console UI's own surface.
	r.Route("/api/view/sessions", func(r chi.Router) {
		r.Use(optionalAdminAuth(opts.AdminPassword))
		r.Post("/", CreateSessionHandler(opts.Registry))
		r.Get("/{id}/logs", GetSessionLogsHandler(opts.Registry))
		r.Post("/{id}/filters", ApplyFiltersHandler(opts.Registry))
		r.Post("/{id}/filters/reset", ResetFiltersHandler(opts.Registry))
		r.Put("/{id}/page", SetPageHandler(opts.Registry))
		r.Put("/{id}/sort", SetSortHandler(opts.Registry))
		r.Delete("/{id}", DeleteSessionHandler(opts.Registry))
	})

	return r
}

// requestIDMiddleware assigns each request an ID for log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// requireBearer rejects requests without the configured bearer token.
// With no token configured the endpoints are open, matching a
// single-operator local deployment.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// optionalAdminAuth protects console endpoints with basic auth when a
// password is set.
func optionalAdminAuth(password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, pass, ok := r.BasicAuth()
			if !ok || pass != password {
				w.Header().Set("WWW-Authenticate", `Basic realm="Console Admin"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
