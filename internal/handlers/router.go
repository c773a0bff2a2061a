package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/melbournemould/leadboard/internal/logger"
	"github.com/melbournemould/leadboard/internal/metrics"
)

// healthTimeout bounds each dependency check behind /health
const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// RouterConfig configures the shared router
type RouterConfig struct {
	Metrics  *metrics.ServiceMetrics
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
}

// Registrar mounts a group of routes
type Registrar interface {
	Register(r *mux.Router)
}

// NewRouter builds a router with the common middleware, /health and /metrics,
// then mounts every registrar
func NewRouter(cfg RouterConfig, registrars ...Registrar) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationMiddleware, RecoveryMiddleware, MetricsMiddleware(cfg.Metrics))

	r.HandleFunc("/health", healthHandler(cfg.Checks)).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer)).Methods(http.MethodGet)
	}

	for _, registrar := range registrars {
		registrar.Register(r)
	}
	return r
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK

		for name, check := range checks {
			checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
			err := check(checkCtx)
			cancel()

			if err != nil {
				logger.LogError(ctx, "Health check failed", err, "dependency", name)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		respondJSON(w, ctx, code, resp)
	}
}
