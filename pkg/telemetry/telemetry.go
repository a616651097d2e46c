// Package telemetry exposes the engine's prometheus metrics. All
// collectors are registered on the default registry and served on
// /metrics by the HTTP facade.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncAttempts counts scheduler ticks that actually started a
	// fetch, labeled by resource kind ("feed" or "messages").
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_sync_attempts_total",
		Help: "Background sync fetches started, by resource kind.",
	}, []string{"kind"})

	// SyncSkipped counts refresh requests dropped before fetching,
	// labeled by reason ("in_flight", "throttled", "no_remote",
	// "local_resource").
	SyncSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_sync_skipped_total",
		Help: "Refresh requests dropped by the scheduler, by reason.",
	}, []string{"kind", "reason"})

	// SyncFailures counts fetch or merge errors swallowed by the
	// scheduler.
	SyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_sync_failures_total",
		Help: "Background sync failures (swallowed), by resource kind.",
	}, []string{"kind"})

	// RowsMerged counts authoritative rows folded into the replica,
	// by collection.
	RowsMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_rows_merged_total",
		Help: "Authoritative rows upserted by the merge engine.",
	}, []string{"collection"})

	// RowsDeleted counts local rows removed by reconciliation.
	RowsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_rows_deleted_total",
		Help: "Local rows removed by merge reconciliation.",
	}, []string{"collection"})

	// RowsSkipped counts malformed remote rows dropped by the merge.
	RowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_rows_skipped_total",
		Help: "Remote rows skipped for missing or unresolvable ids.",
	}, []string{"collection"})

	// PagesServed counts pagination reads, by view
	// ("feed", "profile", "messages").
	PagesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scenefeed_pages_served_total",
		Help: "Pages served from the local replica, by view.",
	}, []string{"view"})

	// ReplicaEntities tracks the current entity counts per collection.
	ReplicaEntities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scenefeed_replica_entities",
		Help: "Entities currently held in the local replica.",
	}, []string{"collection"})
)

// SetReplicaSizes updates the per-collection entity gauges.
func SetReplicaSizes(posts, likes, reposts, conversations, messages int) {
	ReplicaEntities.WithLabelValues("posts").Set(float64(posts))
	ReplicaEntities.WithLabelValues("likes").Set(float64(likes))
	ReplicaEntities.WithLabelValues("reposts").Set(float64(reposts))
	ReplicaEntities.WithLabelValues("conversations").Set(float64(conversations))
	ReplicaEntities.WithLabelValues("messages").Set(float64(messages))
}
