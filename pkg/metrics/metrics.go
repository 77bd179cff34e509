// Package metrics exposes the service's Prometheus metrics. All recording
// methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rag"

// DefaultBuckets are the stage latency buckets (in seconds). Remote model
// calls dominate, so the range is wider than prometheus.DefBuckets.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics holds every collector the service records into.
type Metrics struct {
	reg *prometheus.Registry

	documents        *prometheus.CounterVec
	chunks           prometheus.Counter
	failures         *prometheus.CounterVec
	queries          *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	rewriteFallbacks prometheus.Counter
	breakerState     *prometheus.GaugeVec
}

// New creates a Metrics with its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Documents submitted for ingestion, by outcome.",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_stored_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline failures, by stage.",
		}, []string{"stage"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Answered queries, by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   DefaultBuckets,
		}, []string{"pipeline", "stage"}),
		rewriteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_fallbacks_total",
			Help:      "Queries answered with the original wording because rewriting failed.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documents, m.chunks, m.failures, m.queries,
		m.stageDuration, m.rewriteFallbacks, m.breakerState,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// DocumentIngested counts one document.
func (m *Metrics) DocumentIngested(ok bool) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome(ok)).Inc()
}

// ChunksStored adds n stored chunks.
func (m *Metrics) ChunksStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.Add(float64(n))
}

// StageFailed counts a failure in stage.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

// QueryCompleted counts one query.
func (m *Metrics) QueryCompleted(err error) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome(err == nil)).Inc()
}

// ObserveStage records how long a stage of pipeline took.
func (m *Metrics) ObserveStage(pipeline, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}

// RewriteFallback counts one rewrite fallback.
func (m *Metrics) RewriteFallback() {
	if m == nil {
		return
	}
	m.rewriteFallbacks.Inc()
}

// BreakerState records the current state of the named breaker.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
