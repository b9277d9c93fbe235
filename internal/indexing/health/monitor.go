package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/hotstore/internal/core/worker"
)

// Pinger checks database connectivity.
type Pinger interface {
	Health(ctx context.Context) error
}

// FailureCounter counts recorded rollback failures.
type FailureCounter interface {
	Count(ctx context.Context) (int, error)
}

// Thresholds decide when the hot set is considered unhealthy.
type Thresholds struct {
	DegradedHotBlocks int // 0 disables
	CriticalHotBlocks int // 0 disables
}

// Monitor aggregates health status from the database and the hot set.
type Monitor struct {
	db         Pinger
	stats      worker.HotStats
	failures   FailureCounter
	thresholds Thresholds
	lastCheck  time.Time
	lastReport *StoreHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. failures may be nil.
func NewMonitor(db Pinger, stats worker.HotStats, failures FailureCounter, thresholds Thresholds) *Monitor {
	return &Monitor{
		db:         db,
		stats:      stats,
		failures:   failures,
		thresholds: thresholds,
	}
}

// CheckHealth performs a health check, at most once every 10s.
func (m *Monitor) CheckHealth(ctx context.Context) StoreHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < 10*time.Second {
		return *m.lastReport
	}

	report := StoreHealth{Status: StatusHealthy, Database: "ok"}

	if err := m.db.Health(ctx); err != nil {
		report.Status = StatusCritical
		report.Database = err.Error()
		// Nothing else can be read
		m.remember(report)
		return report
	}

	snap, err := worker.Collect(ctx, m.stats)
	if err != nil {
		report.Status = StatusDegraded
	} else {
		report.HotBlocks = snap.HotBlocks
		report.LatestHeight = snap.LatestHeight
		report.ChangeLogEntries = snap.Entries
	}

	if m.failures != nil {
		if n, err := m.failures.Count(ctx); err == nil {
			report.FailedRollbacks = n
		}
	}

	// Evaluate Status
	t := m.thresholds
	switch {
	case t.CriticalHotBlocks > 0 && report.HotBlocks > t.CriticalHotBlocks:
		report.Status = StatusCritical
	case report.FailedRollbacks > 0,
		t.DegradedHotBlocks > 0 && report.HotBlocks > t.DegradedHotBlocks:
		report.Status = StatusDegraded
	}

	m.remember(report)
	return report
}

func (m *Monitor) remember(report StoreHealth) {
	m.lastCheck = time.Now()
	m.lastReport = &report
}
