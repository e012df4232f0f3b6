package search

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of a coordinator.
type Metrics struct {
	generations        prometheus.Counter
	runs               prometheus.Counter
	evaluations        prometheus.Counter
	retries            prometheus.Counter
	bestDeltaV         prometheus.Gauge
	generationDuration prometheus.Histogram
}

// NewMetrics returns the search metrics, registered on reg if not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mga",
			Name:      "generations_total",
			Help:      "Total number of completed generations",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mga",
			Name:      "worker_runs_total",
			Help:      "Total number of run requests sent to workers",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mga",
			Name:      "fitness_evaluations_total",
			Help:      "Total number of trajectories computed",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mga",
			Name:      "infeasible_retries_total",
			Help:      "Total number of infeasible trajectories retried with a random agent",
		}),
		bestDeltaV: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mga",
			Name:      "best_delta_v_km_per_second",
			Help:      "Total delta-V of the best trajectory of the current search",
		}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mga",
			Name:      "generation_duration_seconds",
			Help:      "Time spent computing one generation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.generations, m.runs, m.evaluations, m.retries, m.bestDeltaV, m.generationDuration)
	}
	return m
}

// recordRun counts a run request.
func (m *Metrics) recordRun() {
	m.runs.Inc()
}

// recordGeneration records a completed generation.
func (m *Metrics) recordGeneration(duration time.Duration, bestDeltaV float64, results []ChunkResult) {
	m.generations.Inc()
	m.generationDuration.Observe(duration.Seconds())
	m.bestDeltaV.Set(bestDeltaV)
	for _, r := range results {
		m.evaluations.Add(float64(r.Evaluations))
		m.retries.Add(float64(r.Retries))
	}
}
