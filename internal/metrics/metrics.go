// Package metrics exposes Prometheus instrumentation for the ranking core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tierboard"

// Metrics groups the collectors the service records into. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	placementsCommitted  *prometheus.CounterVec
	placementsRemoved    *prometheus.CounterVec
	batchEntries         *prometheus.CounterVec
	reconcileCorrections prometheus.Counter
	rankDuration         *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		placementsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_committed_total",
			Help:      "Placements committed to the score ledger.",
		}, []string{"gamemode"}),
		placementsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_removed_total",
			Help:      "Placements cleared from the score ledger.",
		}, []string{"gamemode"}),
		batchEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_entries_total",
			Help:      "Bulk submission entries by outcome.",
		}, []string{"kind", "result"}),
		reconcileCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_corrections_total",
			Help:      "Global point totals corrected by the reconcile worker.",
		}),
		rankDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rank_computation_seconds",
			Help:      "Time spent producing a rank snapshot.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"board"}),
	}
	reg.MustRegister(
		m.placementsCommitted,
		m.placementsRemoved,
		m.batchEntries,
		m.reconcileCorrections,
		m.rankDuration,
	)
	return m
}

// NewNoop returns metrics registered against a throwaway registry
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

// PlacementCommitted counts one committed placement
func (m *Metrics) PlacementCommitted(gamemode string) {
	if m == nil {
		return
	}
	m.placementsCommitted.WithLabelValues(gamemode).Inc()
}

// PlacementRemoved counts one cleared placement
func (m *Metrics) PlacementRemoved(gamemode string) {
	if m == nil {
		return
	}
	m.placementsRemoved.WithLabelValues(gamemode).Inc()
}

// BatchEntries adds the outcome of a batch
func (m *Metrics) BatchEntries(kind string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.batchEntries.WithLabelValues(kind, "success").Add(float64(succeeded))
	m.batchEntries.WithLabelValues(kind, "failure").Add(float64(failed))
}

// ReconcileCorrected counts totals fixed by a reconcile pass
func (m *Metrics) ReconcileCorrected(n int) {
	if m == nil {
		return
	}
	m.reconcileCorrections.Add(float64(n))
}

// ObserveRank records how long a rank snapshot took
func (m *Metrics) ObserveRank(board string, start time.Time) {
	if m == nil {
		return
	}
	m.rankDuration.WithLabelValues(board).Observe(time.Since(start).Seconds())
}
