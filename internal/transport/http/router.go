// Package httptransport assembles the public HTTP surface: the middleware
// chain, the versioned API routes and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dErrors "crm/pkg/domain-errors"
	"crm/pkg/platform/httputil"
	"crm/pkg/platform/middleware/metadata"
	request "crm/pkg/platform/middleware/request"
	"crm/pkg/platform/middleware/requesttime"
	"crm/pkg/platform/middleware/tenant"
)

// RouteRegistrar mounts a bounded context's routes on the tenant-scoped API.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds everything the router needs. Tenant is required; the other
// hooks are optional.
type Config struct {
	Logger    *slog.Logger
	Tenant    *tenant.Resolver
	RateLimit func(http.Handler) http.Handler
	Latency   request.LatencyObserver
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthCheck
	Routes    []RouteRegistrar
}

// NewRouter wires the middleware chain and mounts every registrar under /api/v1.
// Tenant resolution runs before rate limiting so quotas are per organization.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(cfg.Logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	if cfg.Latency != nil {
		r.Use(request.Latency(cfg.Latency))
	}

	r.Get("/healthz", handleHealth(cfg.Health))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Tenant.Middleware)
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		for _, reg := range cfg.Routes {
			reg.Register(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteProblem(w, r, http.StatusNotFound, dErrors.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteProblem(w, r, http.StatusMethodNotAllowed, dErrors.CodeBadRequest, "method not allowed")
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
