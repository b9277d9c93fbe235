package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TrackedChanges counts change records appended to the change log by kind
	TrackedChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotstore_tracked_changes_total",
			Help: "Total number of change records written to the change log",
		},
		[]string{"table", "kind"},
	)

	// PreImageFetches counts bulk pre-image queries issued by the tracker
	PreImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotstore_preimage_fetches_total",
			Help: "Total number of bulk pre-image fetches",
		},
		[]string{"table"},
	)

	// RolledBackChanges counts inverse operations applied during rollback
	RolledBackChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotstore_rolled_back_changes_total",
			Help: "Total number of change records undone",
		},
		[]string{"kind"},
	)

	// RollbacksTotal counts rolled back heights by outcome
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotstore_rollbacks_total",
			Help: "Total number of block rollbacks",
		},
		[]string{"result"},
	)

	// RollbackDuration tracks how long a single height rollback takes
	RollbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotstore_rollback_duration_seconds",
			Help:    "Duration of a single block rollback in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReorgsDetected counts detected reorganizations
	ReorgsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotstore_reorgs_detected_total",
			Help: "Total number of detected chain reorganizations",
		},
	)

	// ReorgDepth tracks the number of blocks discarded per reorg
	ReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotstore_reorg_depth_blocks",
			Help:    "Number of hot blocks rolled back per reorganization",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
		},
	)

	// HotBlocks tracks the number of heights that can still be rolled back
	HotBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotstore_hot_blocks",
			Help: "Number of hot blocks currently recorded",
		},
	)

	// ChangeLogEntries tracks the size of the change log
	ChangeLogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotstore_change_log_entries",
			Help: "Number of change-log rows across all hot blocks",
		},
	)

	// LatestHotHeight tracks the highest hot block
	LatestHotHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotstore_latest_hot_height",
			Help: "Height of the highest hot block",
		},
	)

	// DBBatchSize tracks the number of rows per batched statement
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotstore_db_batch_size",
			Help:    "Number of rows per batched database write",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
		[]string{"operation"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotstore_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)
