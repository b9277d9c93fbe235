// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// StoreHealth contains health metrics for the hot store.
type StoreHealth struct {
	Status           SystemStatus `json:"status"`
	Database         string       `json:"database"`
	HotBlocks        int          `json:"hot_blocks"`
	LatestHeight     int64        `json:"latest_height"`
	ChangeLogEntries int          `json:"change_log_entries"`
	FailedRollbacks  int          `json:"failed_rollbacks"`
}
