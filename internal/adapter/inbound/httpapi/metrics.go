// Package httpapi provides the HTTP API adapter for Modelgate.
package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the API.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ChecksTotal        *prometheus.CounterVec
	CheckDuration      *prometheus.HistogramVec
	InterceptionsTotal *prometheus.CounterVec
	EvaluationsTotal   *prometheus.CounterVec
	VerdictCacheSize   prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer, cacheSize func() float64) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ChecksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "guardrail_checks_total",
				Help:      "Total guardrail checks by phase and verdict",
			},
			[]string{"phase", "action"},
		),
		CheckDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "modelgate",
				Name:      "guardrail_check_duration_seconds",
				Help:      "Guardrail check duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		InterceptionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "interceptions_total",
				Help:      "Total tool-call interceptions by verdict",
			},
			[]string{"action"},
		),
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "modelgate",
				Name:      "evaluations_total",
				Help:      "Total model evaluations by outcome",
			},
			[]string{"outcome"}, // outcome=passed/failed/error
		),
		VerdictCacheSize: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "modelgate",
				Name:      "verdict_cache_entries",
				Help:      "Current custom-rule verdict cache entry count",
			},
			cacheSize,
		),
	}
}
