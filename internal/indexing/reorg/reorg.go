// Package reorg detects chain reorganizations among hot blocks and rewinds
// the store to the last block both chains agree on.
//
// # Detection
//
// When block N arrives its parent hash is already known. It is compared with
// the stored hot block N-1; a mismatch means the stored tip was orphaned. The
// detector then walks back through the hot-block table to find the safe
// height. With a HashFetcher the walk compares stored hashes against the
// canonical chain; without one it trusts the stored parent links and only the
// tip is considered orphaned.
//
// # Rollback Process
//
//  1. List hot heights above the safe height, newest first
//  2. Undo each height's change log in one transaction
//  3. Emit a revert event per height for downstream services
//
// # Usage
//
//	detector := reorg.NewDetector(reorg.Config{}, db.HotBlocks(), nil)
//	handler := reorg.NewHandler(db, rollback.NewEngine(db.Tables, reg))
//
//	// Check on every new block
//	if info, _ := detector.CheckParentHash(ctx, height, parentHash); info.Detected {
//	    handler.Rollback(ctx, info.SafeHeight, reorg.ReasonParentMismatch)
//	}
package reorg

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/rollback"
	"github.com/vietddude/hotstore/internal/infra/storage"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

// HashFetcher returns the canonical hash at height (used when finding the safe point).
type HashFetcher func(ctx context.Context, height int64) (hash string, err error)

// Config holds configuration for reorg detection.
type Config struct {
	MaxDepth int           `yaml:"max_depth"` // Maximum depth to search for a safe point (default: 100)
	LockTTL  time.Duration `yaml:"lock_ttl"`  // Rollback lock lifetime when a Locker is set (default: 1m)
}

// Rollback reasons carried in revert events.
const (
	ReasonParentMismatch = "parent_hash_mismatch"
	ReasonReplaced       = "replaced"
	ReasonManual         = "manual"
)

// Locker serialises rollbacks across processes.
type Locker interface {
	AcquireLock(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, owner string) error
}

// FailureRecorder keeps heights whose rollback failed.
type FailureRecorder interface {
	Add(ctx context.Context, fr *domain.FailedRollback) error
}

// NewDetector creates a new reorg detector. fetch may be nil.
func NewDetector(config Config, blocks storage.HotBlockRepository, fetch HashFetcher) *Detector {
	if config.MaxDepth <= 0 {
		config.MaxDepth = 100
	}
	return &Detector{
		config: config,
		blocks: blocks,
		fetch:  fetch,
	}
}

// NewHandler creates a new reorg handler.
func NewHandler(db *sqlstore.DB, engine *rollback.Engine) *Handler {
	return &Handler{
		db:      db,
		engine:  engine,
		lockTTL: time.Minute,
		log:     slog.Default().With("component", "reorg"),
	}
}
