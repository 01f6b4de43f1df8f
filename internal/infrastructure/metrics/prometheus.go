package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection kinds used as metric labels.
const (
	CollectionKindUser     = "user"
	CollectionKindOutbound = "outbound"
)

var (
	CollectionTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetiver_collection_ticks_total",
		Help: "Collection ticks by kind and outcome",
	}, []string{"kind", "outcome"})

	CollectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vetiver_collection_duration_seconds",
		Help:    "Duration of one collection tick",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	CollectionFailedSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetiver_collection_failed_sources_total",
		Help: "Engines whose counter pull failed, by collection kind",
	}, []string{"kind"})

	PendingEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vetiver_pending_usage_entries",
		Help: "Usage deltas buffered in the cache tier, by category",
	}, []string{"category"})

	ReconciledItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetiver_reconciled_items_total",
		Help: "Pending entries committed to the relational store, by category",
	}, []string{"category"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vetiver_reconciliation_duration_seconds",
		Help:    "Duration of one reconciliation run",
		Buckets: prometheus.DefBuckets,
	})

	ReadyHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vetiver_ready_handles",
		Help: "Node handles currently connected and started",
	})

	NodeStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vetiver_node_status_transitions_total",
		Help: "Node status transitions by previous and new status",
	}, []string{"from", "to"})
)

func ObserveCollectionTick(kind string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	CollectionTicks.WithLabelValues(kind, outcome).Inc()
	CollectionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func AddFailedSources(kind string, count int) {
	if count > 0 {
		CollectionFailedSources.WithLabelValues(kind).Add(float64(count))
	}
}

func SetPendingEntries(category string, count int64) {
	if count < 0 {
		count = 0
	}
	PendingEntries.WithLabelValues(category).Set(float64(count))
}

func AddReconciledItems(category string, count int) {
	if count > 0 {
		ReconciledItems.WithLabelValues(category).Add(float64(count))
	}
}

func ObserveReconcileDuration(duration time.Duration) {
	ReconcileDuration.Observe(duration.Seconds())
}

func SetReadyHandles(count int) {
	if count < 0 {
		count = 0
	}
	ReadyHandles.Set(float64(count))
}

func IncNodeStatusTransition(from, to string) {
	NodeStatusTransitions.WithLabelValues(from, to).Inc()
}
