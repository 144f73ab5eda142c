package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus metrics for workflow runs.
//
// Metrics exposed (all namespaced with "lexgraph_"):
//
//  1. inflight_runs (gauge): runs currently executing.
//  2. runs_total (counter): finished runs. Labels: outcome
//     (completed, incomplete, cancelled, abandoned).
//  3. step_latency_ms (histogram): step duration in milliseconds.
//     Labels: step, status (ok, panic, timeout, cancelled).
//  4. route_decisions_total (counter): labels chosen by the conditional
//     router. Labels: label.
//  5. routing_fallbacks_total (counter): routings that fell back to
//     synthesize. Labels: reason.
//  6. collaborator_failures_total (counter): failed retrieval or generation
//     calls made from inside steps. Labels: step, op.
//
// Run ids are deliberately not used as labels; they would make every series
// unique.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	exec, _ := graph.NewExecutor(g, graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe for concurrent use and on a nil receiver.
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge
	runs         *prometheus.CounterVec
	stepLatency  *prometheus.HistogramVec
	routes       *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	collabErrors *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the run metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{}

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexgraph",
		Name:      "inflight_runs",
		Help:      "Number of workflow runs currently executing",
	})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexgraph",
		Name:      "runs_total",
		Help:      "Finished workflow runs by outcome",
	}, []string{"outcome"})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lexgraph",
		Name:      "step_latency_ms",
		Help:      "Step execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"step", "status"})

	pm.routes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexgraph",
		Name:      "route_decisions_total",
		Help:      "Branch labels chosen by the conditional router",
	}, []string{"label"})

	pm.fallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexgraph",
		Name:      "routing_fallbacks_total",
		Help:      "Routings that fell back to the synthesize branch",
	}, []string{"reason"})

	pm.collabErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexgraph",
		Name:      "collaborator_failures_total",
		Help:      "Failed retrieval or generation calls made from inside steps",
	}, []string{"step", "op"})

	return pm
}

// RunStarted increments the in-flight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if pm == nil {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished decrements the in-flight gauge and counts the outcome.
func (pm *PrometheusMetrics) RunFinished(outcome string) {
	if pm == nil {
		return
	}
	pm.inflightRuns.Dec()
	pm.runs.WithLabelValues(outcome).Inc()
}

// RecordStepLatency observes one step execution.
func (pm *PrometheusMetrics) RecordStepLatency(step StepID, latency time.Duration, status string) {
	if pm == nil {
		return
	}
	pm.stepLatency.WithLabelValues(string(step), status).Observe(float64(latency.Milliseconds()))
}

// RecordRoute counts each label followed after the conditional step.
func (pm *PrometheusMetrics) RecordRoute(labels []Label) {
	if pm == nil {
		return
	}
	for _, l := range labels {
		pm.routes.WithLabelValues(string(l)).Inc()
	}
}

// RecordFallback counts a routing that fell back to synthesize.
func (pm *PrometheusMetrics) RecordFallback(reason string) {
	if pm == nil {
		return
	}
	pm.fallbacks.WithLabelValues(reason).Inc()
}

// RecordCollaboratorFailure counts a failed collaborator call.
func (pm *PrometheusMetrics) RecordCollaboratorFailure(step StepID, op string) {
	if pm == nil {
		return
	}
	pm.collabErrors.WithLabelValues(string(step), op).Inc()
}
