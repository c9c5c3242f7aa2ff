// Package api exposes the engine's HTTP surface: scrape triggers, streaming
// progress, tracking CRUD, link resolution, and the image relay.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/pipeline"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/progress"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/resolver"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/tracking"
)

const maxRequestBodySize = 64 << 10 // 64KB

// Deps carries everything the HTTP handlers need.
type Deps struct {
	Registry *catalog.Registry
	Runner   *pipeline.Runner
	Tracker  *progress.Tracker
	Tracking *tracking.Service
	Resolver *resolver.Resolver
	// Token guards the whole surface via bearer auth.
	Token string
	// ImageHosts is the allow-list for the image relay.
	ImageHosts []string
	// ImageMaxAge is the relay's cache lifetime in seconds.
	ImageMaxAge int
	// HTTPClient performs relay fetches.
	HTTPClient *http.Client
}

// NewHandler builds the engine's router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Token))

		r.Post("/scrape/{source}", handleScrape(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/jobs/{id}/events", handleJobEvents(deps))

		r.Get("/resolve", handleResolve(deps))

		r.Get("/tracking", handleListTracking(deps))
		r.Post("/tracking", handleAddTracking(deps))
		r.Delete("/tracking/{id}", handleRemoveTracking(deps))

		r.Get("/image", handleImageRelay(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// bearerAuth guards the engine surface. Session issuance lives outside the
// engine; this token is the trust boundary with the outer routing layer.
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userID extracts the acting user set by the outer auth layer.
func userID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	return id, id != ""
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// resolverErrorStatus maps typed resolver failures to HTTP statuses; they are
// surfaced verbatim in the message, never retried here.
func resolverErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, resolver.ErrUnsupportedSource):
		return http.StatusUnprocessableEntity, "unsupported_source"
	case errors.Is(err, resolver.ErrColorUnavailable):
		return http.StatusConflict, "color_unavailable"
	case errors.Is(err, resolver.ErrNotFound):
		return http.StatusNotFound, "not_found"
	}
	return http.StatusInternalServerError, "internal_error"
}

// baseContext lets handlers that outlive the request (scrape runs) derive
// from the server's lifetime context instead of the request's.
type ctxKey struct{}

// WithBaseContext stores the server lifetime context on the request context.
func WithBaseContext(base context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, base)))
		})
	}
}

func baseContext(r *http.Request) context.Context {
	if base, ok := r.Context().Value(ctxKey{}).(context.Context); ok {
		return base
	}
	return context.Background()
}
