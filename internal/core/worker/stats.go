package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// HotStats is what the collector reads.
type HotStats interface {
	storage.ChangeLogStats
	List(ctx context.Context) ([]domain.HotBlock, error)
}

// StatsCollector periodically resyncs the hot-block gauges with the database.
type StatsCollector struct {
	interval time.Duration
	stats    HotStats
}

// Snapshot is one reading of the hot set.
type Snapshot struct {
	HotBlocks       int
	Entries         int
	LatestHeight    int64
	LowestHeight    int64
	ChangesByHeight map[int64]int
}

// NewStatsCollector creates a new collector worker.
func NewStatsCollector(interval time.Duration, stats HotStats) *StatsCollector {
	return &StatsCollector{
		interval: interval,
		stats:    stats,
	}
}

// Start runs the collector loop.
func (c *StatsCollector) Start(ctx context.Context) {
	if c.interval <= 0 {
		return // Disabled
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Initial collection
	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *StatsCollector) collect(ctx context.Context) {
	snap, err := Collect(ctx, c.stats)
	if err != nil {
		slog.Error("Failed to collect hot-block stats", "error", err)
		return
	}
	metrics.HotBlocks.Set(float64(snap.HotBlocks))
	metrics.ChangeLogEntries.Set(float64(snap.Entries))
	metrics.LatestHotHeight.Set(float64(snap.LatestHeight))
}

// Collect reads the current hot set.
func Collect(ctx context.Context, stats HotStats) (*Snapshot, error) {
	blocks, err := stats.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := stats.CountByHeight(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{HotBlocks: len(blocks), ChangesByHeight: counts}
	for _, n := range counts {
		snap.Entries += n
	}
	if len(blocks) > 0 {
		snap.LowestHeight = blocks[0].Height
		snap.LatestHeight = blocks[len(blocks)-1].Height
	}
	return snap, nil
}
