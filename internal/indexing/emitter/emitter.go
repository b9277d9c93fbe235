package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/hotstore/internal/core/domain"
)

// Emitter defines the interface for announcing rolled back blocks
type Emitter interface {
	// EmitRevert sends a revert event for one height
	EmitRevert(ctx context.Context, event domain.RevertEvent) error

	// Close closes the emitter connection
	Close() error
}

// LogEmitter writes revert events to the log. Used when no broker is configured.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates an emitter logging through l, or slog.Default when nil.
func NewLogEmitter(l *slog.Logger) *LogEmitter {
	if l == nil {
		l = slog.Default()
	}
	return &LogEmitter{log: l}
}

func (e *LogEmitter) EmitRevert(_ context.Context, event domain.RevertEvent) error {
	e.log.Info("Block reverted",
		"run", event.RunID,
		"height", event.Height,
		"hash", event.Hash,
		"safe_height", event.SafeHeight,
		"undone", event.Undone,
		"reason", event.Reason,
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }

// Multi fans an event out to every emitter, returning the first error.
type Multi []Emitter

func (m Multi) EmitRevert(ctx context.Context, event domain.RevertEvent) error {
	var first error
	for _, e := range m {
		if err := e.EmitRevert(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, e := range m {
		if err := e.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
