package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

const namespace = "shortcut"

var (
	analysisDurationBuckets = []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300}
	stageDurationBuckets    = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	httpDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	filterRatioBuckets      = []float64{0, 10, 25, 50, 75, 90, 100}
)

// Collector owns the process registry and every application metric.  The
// pipeline reports through the selfrag.Metrics methods; the HTTP layer and
// the ingestion worker call the rest.
type Collector struct {
	registry *prometheus.Registry
	log      logging.Logger

	analysesStarted  prometheus.Counter
	analysesFinished *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	filterRatio      *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rateLimitRejections *prometheus.CounterVec
	llmRetries          *prometheus.CounterVec

	documentsIngested *prometheus.CounterVec
	componentHealth   *prometheus.GaugeVec
}

// New builds a Collector with its own registry, including the standard Go
// runtime and process collectors.
func New(log logging.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg, log)
}

func newWithRegistry(reg *prometheus.Registry, log logging.Logger) *Collector {
	c := &Collector{
		registry: reg,
		log:      log.Named("metrics"),

		analysesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_started_total",
			Help:      "Prior-art analysis runs started.",
		}),
		analysesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_finished_total",
			Help:      "Prior-art analysis runs finished, by outcome.",
		}, []string{"outcome"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis duration, by outcome.",
			Buckets:   analysisDurationBuckets,
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Per-stage pipeline duration.",
			Buckets:   stageDurationBuckets,
		}, []string{"stage"}),
		filterRatio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_filter_ratio_pct",
			Help:      "Percentage of candidates filtered out, by stage.",
			Buckets:   filterRatioBuckets,
		}, []string{"stage"}),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   httpDurationBuckets,
		}, []string{"method", "path"}),

		rateLimitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the per-session rate limiter.",
		}, []string{"path"}),
		llmRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "LLM calls retried after a transient upstream failure.",
		}, []string{"operation"}),

		documentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Patent documents processed by the ingestion worker.",
		}, []string{"status"}),
		componentHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_up",
			Help:      "Dependency health from the readiness probe (1=up, 0=down).",
		}, []string{"component"}),
	}

	reg.MustRegister(
		c.analysesStarted,
		c.analysesFinished,
		c.analysisDuration,
		c.stageDuration,
		c.filterRatio,
		c.httpRequests,
		c.httpDuration,
		c.rateLimitRejections,
		c.llmRetries,
		c.documentsIngested,
		c.componentHealth,
	)
	return c
}

// AnalysisStarted implements selfrag.Metrics.
func (c *Collector) AnalysisStarted() {
	c.analysesStarted.Inc()
}

// AnalysisFinished implements selfrag.Metrics.
func (c *Collector) AnalysisFinished(outcome string, elapsed time.Duration) {
	c.analysesFinished.WithLabelValues(outcome).Inc()
	c.analysisDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// StageObserved implements selfrag.Metrics.
func (c *Collector) StageObserved(stage string, elapsed time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// FilterRatioObserved implements selfrag.Metrics.
func (c *Collector) FilterRatioObserved(stage string, ratioPct float64) {
	c.filterRatio.WithLabelValues(stage).Observe(ratioPct)
}

// HTTPRequestObserved records one served request.  The path must be the
// route pattern, never the raw URL.
func (c *Collector) HTTPRequestObserved(method, path string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RateLimitRejected records one 429 issued by the rate limit middleware.
func (c *Collector) RateLimitRejected(path string) {
	c.rateLimitRejections.WithLabelValues(path).Inc()
}

// LLMRetryObserved records one retried model call.
func (c *Collector) LLMRetryObserved(operation string) {
	c.llmRetries.WithLabelValues(operation).Inc()
}

// DocumentIngested records one processed document ("indexed", "failed" or
// "dead_lettered").
func (c *Collector) DocumentIngested(status string) {
	c.documentsIngested.WithLabelValues(status).Inc()
}

// ComponentHealthObserved records a readiness probe result.
func (c *Collector) ComponentHealthObserved(component string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	c.componentHealth.WithLabelValues(component).Set(v)
}

// Handler serves the registry in the OpenMetrics-capable text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
