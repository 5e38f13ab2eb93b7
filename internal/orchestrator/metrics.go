package orchestrator

import (
	"time"

	"github.com/aristath/riskflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the orchestrator's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	stepErrors   *prometheus.CounterVec
	cache        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "riskflow",
				Subsystem: "orchestrator",
				Name:      "runs_total",
				Help:      "Pattern runs by pattern and outcome",
			},
			[]string{"pattern", "outcome"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "riskflow",
				Subsystem: "orchestrator",
				Name:      "step_duration_seconds",
				Help:      "Step execution time by capability",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		stepErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "riskflow",
				Subsystem: "orchestrator",
				Name:      "step_errors_total",
				Help:      "Failed steps by capability and error kind",
			},
			[]string{"capability", "kind"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "riskflow",
				Subsystem: "orchestrator",
				Name:      "cache_lookups_total",
				Help:      "Graph store lookups for cacheable steps by result",
			},
			[]string{"capability", "result"},
		),
	}
}

func (m *Metrics) observeRun(pattern, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(pattern, outcome).Inc()
}

func (m *Metrics) observeStep(capability string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(capability).Observe(elapsed.Seconds())
	if err != nil {
		m.stepErrors.WithLabelValues(capability, string(domain.KindOf(err))).Inc()
	}
}

func (m *Metrics) observeCache(capability string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(capability, result).Inc()
}
