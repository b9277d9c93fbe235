// Package session applies one hot block: every write goes through the change
// tracker first and then to the entity store, inside a single transaction
// that also records the block as hot.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/hot/tracker"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

// Session is the write surface for one block.
type Session struct {
	ID      string
	block   domain.HotBlock
	uow     *sqlstore.UnitOfWork
	tracker *tracker.Tracker
	store   *sqlstore.EntityStore
	log     *slog.Logger
}

// Begin opens a transaction and records block as hot.
func Begin(ctx context.Context, db *sqlstore.DB, reg *schema.Registry, block domain.HotBlock) (*Session, error) {
	uow, err := db.NewUnitOfWork(ctx)
	if err != nil {
		return nil, err
	}
	if err := uow.HotBlocks().Insert(ctx, block); err != nil {
		_ = uow.Rollback()
		return nil, err
	}

	id := uuid.NewString()
	log := slog.Default().With("session", id)
	store := uow.Entities(reg)
	return &Session{
		ID:      id,
		block:   block,
		uow:     uow,
		store:   store,
		tracker: tracker.New(uow.Tx(), uow.Tables(), reg, store, block.Height).WithLogger(log),
		log:     log,
	}, nil
}

// Apply runs fn in a new session and commits when it succeeds.
func Apply(
	ctx context.Context,
	db *sqlstore.DB,
	reg *schema.Registry,
	block domain.HotBlock,
	fn func(s *Session) error,
) error {
	s, err := Begin(ctx, db, reg, block)
	if err != nil {
		return err
	}
	defer func() { _ = s.Rollback() }()

	if err := fn(s); err != nil {
		return fmt.Errorf("apply block %d: %w", block.Height, err)
	}
	return s.Commit()
}

// Block returns the block being applied.
func (s *Session) Block() domain.HotBlock { return s.block }

// Insert writes rows that are known to be new.
func (s *Session) Insert(ctx context.Context, entity string, rows []schema.Row) error {
	if err := s.tracker.TrackInsert(ctx, entity, rows); err != nil {
		return err
	}
	return s.store.Insert(ctx, entity, rows)
}

// Upsert writes rows, replacing existing ones entirely.
func (s *Session) Upsert(ctx context.Context, entity string, rows []schema.Row) error {
	if err := s.tracker.TrackUpsert(ctx, entity, rows); err != nil {
		return err
	}
	return s.store.Upsert(ctx, entity, rows)
}

// Delete removes rows by id.
func (s *Session) Delete(ctx context.Context, entity string, ids []string) error {
	if err := s.tracker.TrackDelete(ctx, entity, ids); err != nil {
		return err
	}
	return s.store.Delete(ctx, entity, ids)
}

// Find reads current rows inside the session's transaction.
func (s *Session) Find(ctx context.Context, entity, id string) (*schema.Row, error) {
	return s.store.FindOne(ctx, entity, id)
}

// Commit makes the writes, their change log and the hot-block record durable.
func (s *Session) Commit() error {
	if err := s.uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit block %d: %w", s.block.Height, err)
	}
	metrics.HotBlocks.Inc()
	s.log.Debug("Block applied", "height", s.block.Height, "changes", s.tracker.Sequence())
	return nil
}

// Rollback aborts the session. Safe to call after Commit.
func (s *Session) Rollback() error {
	return s.uow.Rollback()
}
