// Package httptransport assembles the HTTP router. Domain handlers register
// their own routes; this package owns the middleware chain and the
// operational endpoints (health, metrics).
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lastmile/internal/platform/middleware"
	"lastmile/internal/transport/http/shared"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps collects everything the router needs. Nil registrars are skipped so
// partial deployments (tracking-only ingest nodes) reuse the same assembly.
type Deps struct {
	Logger   *slog.Logger
	Token    middleware.TokenValidator
	Handlers []Registrar
	Health   map[string]HealthCheck
}

// NewRouter wires the middleware chain, operational endpoints, and all domain
// routes. Everything under the API group requires a valid bearer token; audit
// attribution depends on it.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireActor(deps.Token, deps.Logger))
		for _, h := range deps.Handlers {
			if h != nil {
				h.Register(api)
			}
		}
	})

	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(components) > 0 {
			body["components"] = components
		}
		shared.WriteJSON(w, status, body)
	}
}
