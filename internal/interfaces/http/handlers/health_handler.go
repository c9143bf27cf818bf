package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

const readinessTimeout = 5 * time.Second

// HealthChecker probes one dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthMetrics mirrors probe results into the metrics registry.
type HealthMetrics interface {
	ComponentHealthObserved(component string, up bool)
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	components map[string]HealthChecker
	metrics    HealthMetrics
	log        logging.Logger
}

func NewHealthHandler(components map[string]HealthChecker, metrics HealthMetrics, log logging.Logger) *HealthHandler {
	return &HealthHandler{components: components, metrics: metrics, log: log.Named("health")}
}

// Liveness answers 200 as long as the process serves requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Readiness probes every registered dependency concurrently and answers 503
// when any probe fails.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	type probe struct {
		name string
		err  error
	}
	results := make([]probe, 0, len(h.components))
	resultCh := make(chan probe, len(h.components))

	g, gctx := errgroup.WithContext(ctx)
	for name, checker := range h.components {
		name, checker := name, checker
		g.Go(func() error {
			resultCh <- probe{name: name, err: checker.HealthCheck(gctx)}
			return nil
		})
	}
	_ = g.Wait()
	close(resultCh)
	for p := range resultCh {
		results = append(results, p)
	}

	resp := readinessResponse{Status: "ok", Components: make(map[string]string, len(results))}
	for _, p := range results {
		up := p.err == nil
		if h.metrics != nil {
			h.metrics.ComponentHealthObserved(p.name, up)
		}
		if up {
			resp.Components[p.name] = "ok"
			continue
		}
		resp.Status = "degraded"
		resp.Components[p.name] = "down"
		h.log.Warn("readiness probe failed",
			logging.String("component", p.name),
			logging.Err(p.err),
		)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
