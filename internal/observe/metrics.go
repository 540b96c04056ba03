// Package observe provides metrics and tracing for the governance gateway.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	DecisionsTotal   *prometheus.CounterVec
	EvalDuration     *prometheus.HistogramVec
	RateLimitDenials *prometheus.CounterVec
	DuplicatesTotal  prometheus.Counter
	DecisionLogDrops prometheus.Counter
	CompletionsTotal *prometheus.CounterVec
	PendingMutations prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perchgate",
				Name:      "decisions_total",
				Help:      "Total gateway decisions by outcome",
			},
			[]string{"outcome"}, // proceed/denied/routed_to_approval/dry_run/duplicate/error
		),
		EvalDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "perchgate",
				Name:      "evaluation_duration_seconds",
				Help:      "Gateway evaluation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		RateLimitDenials: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perchgate",
				Name:      "rate_limit_denials_total",
				Help:      "Denials caused by an exhausted rate limit, by counter key",
			},
			[]string{"limit_key"},
		),
		DuplicatesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "perchgate",
				Name:      "duplicates_total",
				Help:      "Requests answered from the idempotency window instead of executing",
			},
		),
		DecisionLogDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "perchgate",
				Name:      "decision_log_drops_total",
				Help:      "Best-effort decision log writes that failed",
			},
		),
		CompletionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "perchgate",
				Name:      "completions_total",
				Help:      "Ticket completions by result",
			},
			[]string{"result"}, // success/failure
		),
		PendingMutations: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "perchgate",
				Name:      "pending_mutations",
				Help:      "Tickets issued and not yet completed",
			},
		),
	}
}
