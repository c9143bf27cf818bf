// Package http wires the chi route tree and the server around the analysis
// API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/ShortCut-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware the route tree mounts.
// Nil members are skipped, which is what the tests rely on.
type RouterConfig struct {
	AnalysisHandler *handlers.AnalysisHandler
	HealthHandler   *handlers.HealthHandler

	CORS        *middleware.CORS
	RateLimit   *middleware.RateLimit
	HTTPMetrics middleware.HTTPMetrics

	// MetricsHandler serves the Prometheus registry at /metrics.
	MetricsHandler http.Handler

	Logger logging.Logger
}

// NewRouter builds the complete route tree.  The rate limiter wraps only
// the analysis-run endpoint; history reads and report links stay cheap and
// unlimited.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Session)

	if cfg.CORS != nil {
		r.Use(cfg.CORS.Handler)
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.HTTPMetrics, "/healthz", "/readyz", "/metrics"))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		registerAnalysisRoutes(api, cfg)
	})

	return r
}

func registerAnalysisRoutes(r chi.Router, cfg RouterConfig) {
	h := cfg.AnalysisHandler
	if h == nil {
		return
	}
	r.Route("/analyses", func(ar chi.Router) {
		if cfg.RateLimit != nil {
			ar.With(cfg.RateLimit.Handler).Post("/", h.Analyze)
		} else {
			ar.Post("/", h.Analyze)
		}
		ar.Get("/", h.History)
		ar.Get("/{analysisID}/report", h.ReportURL)
	})
}
