// Package metrics provides Prometheus metrics for the context service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	MetricIncrements   *prometheus.CounterVec
	TriggersFired      *prometheus.CounterVec
	RegenerationsTotal *prometheus.CounterVec
	ArtifactsGenerated *prometheus.CounterVec
	ContextQuality     prometheus.Histogram
	StoreErrorsTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_http_requests_total",
				Help: "Total HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contextd_http_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		MetricIncrements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_metric_increments_total",
				Help: "Total context metric increments by metric.",
			},
			[]string{"metric"},
		),
		TriggersFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_triggers_fired_total",
				Help: "Total regeneration triggers fired by trigger id.",
			},
			[]string{"trigger"},
		),
		RegenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_regenerations_completed_total",
				Help: "Total pending regenerations marked complete by trigger id.",
			},
			[]string{"trigger"},
		),
		ArtifactsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_artifacts_generated_total",
				Help: "Total artifacts produced by artifact type and mode.",
			},
			[]string{"artifact", "mode"},
		),
		ContextQuality: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contextd_context_quality_score",
				Help:    "Context quality scores observed at generation time.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contextd_store_errors_total",
				Help: "Total project store errors by operation and kind.",
			},
			[]string{"op", "kind"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.MetricIncrements)
	reg.MustRegister(m.TriggersFired)
	reg.MustRegister(m.RegenerationsTotal)
	reg.MustRegister(m.ArtifactsGenerated)
	reg.MustRegister(m.ContextQuality)
	reg.MustRegister(m.StoreErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest counts a finished HTTP request and its duration.
func (m *Metrics) RecordRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordIncrement counts a metric increment.
func (m *Metrics) RecordIncrement(metric string) {
	if m == nil {
		return
	}
	m.MetricIncrements.WithLabelValues(metric).Inc()
}

// RecordFired counts a trigger firing.
func (m *Metrics) RecordFired(triggerID string) {
	if m == nil {
		return
	}
	m.TriggersFired.WithLabelValues(triggerID).Inc()
}

// RecordRegenerated counts a pending regeneration marked complete.
func (m *Metrics) RecordRegenerated(triggerID string) {
	if m == nil {
		return
	}
	m.RegenerationsTotal.WithLabelValues(triggerID).Inc()
}

// RecordArtifact counts one produced artifact. mode is "generate" or "regenerate".
func (m *Metrics) RecordArtifact(artifact, mode string) {
	if m == nil {
		return
	}
	m.ArtifactsGenerated.WithLabelValues(artifact, mode).Inc()
}

// ObserveQuality records a context quality score.
func (m *Metrics) ObserveQuality(score int) {
	if m == nil {
		return
	}
	m.ContextQuality.Observe(float64(score))
}

// RecordStoreError counts a failed store operation.
func (m *Metrics) RecordStoreError(op, kind string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op, kind).Inc()
}
