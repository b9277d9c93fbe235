package reorg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/rollback"
	"github.com/vietddude/hotstore/internal/indexing/emitter"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

// ErrRollbackInProgress is returned when another process holds the rollback lock.
var ErrRollbackInProgress = errors.New("rollback already in progress")

// Handler executes reorg rollback operations.
type Handler struct {
	db       *sqlstore.DB
	engine   *rollback.Engine
	emitter  emitter.Emitter
	failures FailureRecorder
	locker   Locker
	lockTTL  time.Duration
	callback func(event domain.RevertEvent)
	log      *slog.Logger
}

// RollbackResult contains the result of a rollback operation.
type RollbackResult struct {
	RunID      string
	SafeHeight int64
	Heights    []int64 // newest first
	Undone     int
	Duration   time.Duration
}

// SetRevertCallback sets a callback for revert events.
func (h *Handler) SetRevertCallback(fn func(event domain.RevertEvent)) {
	h.callback = fn
}

// SetEmitter sets where revert events are published.
func (h *Handler) SetEmitter(e emitter.Emitter) {
	h.emitter = e
}

// SetFailureRecorder sets where failed rollbacks are recorded.
func (h *Handler) SetFailureRecorder(r FailureRecorder) {
	h.failures = r
}

// SetLocker makes rollbacks take l for at most ttl.
func (h *Handler) SetLocker(l Locker, ttl time.Duration) {
	h.locker = l
	if ttl > 0 {
		h.lockTTL = ttl
	}
}

// Rollback rewinds the store to safeHeight: every hot height above it is
// undone newest first inside one transaction. Revert events are emitted only
// after the transaction committed.
func (h *Handler) Rollback(ctx context.Context, safeHeight int64, reason string) (*RollbackResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := h.log.With("run", runID)

	if h.locker != nil {
		ok, err := h.locker.AcquireLock(ctx, runID, h.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire rollback lock: %w", err)
		}
		if !ok {
			return nil, ErrRollbackInProgress
		}
		defer func() {
			if err := h.locker.ReleaseLock(context.WithoutCancel(ctx), runID); err != nil {
				log.Warn("Failed to release rollback lock", "error", err)
			}
		}()
	}

	result := &RollbackResult{RunID: runID, SafeHeight: safeHeight}
	var (
		events  []domain.RevertEvent
		failing int64 = -1
	)
	err := h.db.InTx(ctx, func(u *sqlstore.UnitOfWork) error {
		blocks, err := u.HotBlocks().Above(ctx, safeHeight)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			res, err := h.engine.Rollback(ctx, u.Tx(), b.Height)
			if err != nil {
				failing = b.Height
				return err
			}
			result.Heights = append(result.Heights, b.Height)
			result.Undone += res.Undone()
			events = append(events, domain.RevertEvent{
				EventType:  domain.EventTypeBlockReverted,
				RunID:      runID,
				Height:     b.Height,
				Hash:       b.Hash,
				SafeHeight: safeHeight,
				Undone:     res.Undone(),
				DetectedAt: start,
				Reason:     reason,
			})
		}
		return nil
	})
	if err != nil {
		h.recordFailure(ctx, failing, safeHeight, err)
		return nil, fmt.Errorf("failed to roll back to %d: %w", safeHeight, err)
	}

	metrics.HotBlocks.Sub(float64(len(result.Heights)))
	for _, e := range events {
		h.emit(ctx, e)
	}

	result.Duration = time.Since(start)
	if len(result.Heights) > 0 {
		log.Info("Rolled back to safe height",
			"safe_height", safeHeight,
			"blocks", len(result.Heights),
			"undone", result.Undone,
			"reason", reason,
			"duration", result.Duration,
		)
	}
	return result, nil
}

func (h *Handler) emit(ctx context.Context, e domain.RevertEvent) {
	if h.callback != nil {
		h.callback(e)
	}
	if h.emitter != nil {
		if err := h.emitter.EmitRevert(ctx, e); err != nil {
			h.log.Error("Failed to emit revert event", "height", e.Height, "error", err)
		}
	}
}

func (h *Handler) recordFailure(ctx context.Context, height, safeHeight int64, cause error) {
	if h.failures == nil || height < 0 {
		return
	}
	fr := &domain.FailedRollback{Height: height, SafeHeight: safeHeight, Error: cause.Error()}
	if err := h.failures.Add(context.WithoutCancel(ctx), fr); err != nil {
		h.log.Error("Failed to record failed rollback", "height", height, "error", err)
	}
}

// CanRecover reports whether every height above safeHeight up to the latest
// hot block is still hot, i.e. the store can be rewound to safeHeight.
func (h *Handler) CanRecover(ctx context.Context, safeHeight int64) (bool, error) {
	blocks, err := h.db.HotBlocks().Above(ctx, safeHeight)
	if err != nil {
		return false, err
	}
	for i, b := range blocks {
		if b.Height != safeHeight+int64(len(blocks)-i) {
			return false, nil
		}
	}
	return true, nil
}
