package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// UnitOfWork bundles all persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{db: db, tx: tx}, nil
}

// InTx runs fn inside a unit of work, committing when fn succeeds.
func (db *DB) InTx(ctx context.Context, fn func(u *UnitOfWork) error) error {
	u, err := db.NewUnitOfWork(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = u.Rollback() }()

	if err := fn(u); err != nil {
		return err
	}
	return u.Commit()
}

// Tx exposes the transaction for the tracker and the rollback engine.
func (u *UnitOfWork) Tx() storage.Queryer {
	return u.tx
}

// Tables returns the bookkeeping table names.
func (u *UnitOfWork) Tables() storage.Tables {
	return u.db.Tables
}

// HotBlocks returns the hot-block repository bound to this transaction.
func (u *UnitOfWork) HotBlocks() *HotBlockRepo {
	return NewHotBlockRepo(u.tx, u.db.Tables)
}

// Entities returns the entity store bound to this transaction.
func (u *UnitOfWork) Entities(reg *schema.Registry) *EntityStore {
	return NewEntityStore(u.tx, u.db.Dialect, reg)
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}
