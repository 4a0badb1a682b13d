// Package metrics exposes engine counters to Prometheus. A nil *Metrics is valid
// and records nothing, which is what tests use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fixture_engine"

type Metrics struct {
	generations     *prometheus.CounterVec
	generationTime  *prometheus.HistogramVec
	results         *prometheus.CounterVec
	advancements    *prometheus.CounterVec
	reverts         *prometheus.CounterVec
	resetMatches    prometheus.Counter
	lockWaitSeconds prometheus.Histogram
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Fixture generations by mode and outcome.",
		}, []string{"mode", "outcome"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent generating fixtures.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_results_total",
			Help:      "Recorded match results by whether they were final.",
		}, []string{"final"}),
		advancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advancements_total",
			Help:      "Advancement decisions by outcome.",
		}, []string{"outcome"}),
		reverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_operations_total",
			Help:      "Executed cascade reverts and deletions.",
		}, []string{"kind"}),
		resetMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_reset_matches_total",
			Help:      "Matches reset to pending by cascades.",
		}),
		lockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tournament_lock_wait_seconds",
			Help:      "Time spent waiting for the per-tournament lock.",
			Buckets:   []float64{.0001, .001, .01, .1, 1},
		}),
	}
	reg.MustRegister(
		m.generations,
		m.generationTime,
		m.results,
		m.advancements,
		m.reverts,
		m.resetMatches,
		m.lockWaitSeconds,
	)
	return m
}

func (m *Metrics) ObserveGeneration(mode string, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generations.WithLabelValues(mode, outcome).Inc()
	m.generationTime.WithLabelValues(mode).Observe(took.Seconds())
}

func (m *Metrics) ResultRecorded(final bool) {
	if m == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	m.results.WithLabelValues(label).Inc()
}

// Advancement outcomes: advanced, finished, waiting, ambiguous, unlinked.
func (m *Metrics) Advancement(outcome string) {
	if m == nil {
		return
	}
	m.advancements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Cascade(kind string, reset int) {
	if m == nil {
		return
	}
	m.reverts.WithLabelValues(kind).Inc()
	m.resetMatches.Add(float64(reset))
}

func (m *Metrics) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.Observe(d.Seconds())
}
