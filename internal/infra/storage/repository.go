package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/dialect"
)

const (
	// ChangeLogTable holds one row per tracked row-level change.
	ChangeLogTable = "hot_change_log"

	// HotBlockTable holds one row per height that can still be rolled back.
	HotBlockTable = "hot_block"
)

// Queryer is satisfied by *sqlx.DB and *sqlx.Tx. Everything that tracks or
// undoes changes runs through whatever scope the caller hands in.
type Queryer interface {
	sqlx.ExtContext
}

// Tables resolves the bookkeeping table names for a dialect.
type Tables struct {
	Dialect dialect.Dialect
	Schema  string
}

// ChangeLog returns the quoted change-log table.
func (t Tables) ChangeLog() string {
	return t.Dialect.QuoteTable(t.Schema, ChangeLogTable)
}

// HotBlocks returns the quoted hot-block table.
func (t Tables) HotBlocks() string {
	return t.Dialect.QuoteTable(t.Schema, HotBlockTable)
}

// HotBlockRepository handles hot-block bookkeeping.
type HotBlockRepository interface {
	// Insert records a height as hot
	Insert(ctx context.Context, block domain.HotBlock) error

	// Get retrieves a hot block, nil if the height is not hot
	Get(ctx context.Context, height int64) (*domain.HotBlock, error)

	// Latest retrieves the highest hot block, nil if there is none
	Latest(ctx context.Context) (*domain.HotBlock, error)

	// Above lists hot blocks with height > height, newest first
	Above(ctx context.Context, height int64) ([]domain.HotBlock, error)

	// List lists all hot blocks, oldest first
	List(ctx context.Context) ([]domain.HotBlock, error)
}

// ChangeLogStats reports per-height change counts.
type ChangeLogStats interface {
	CountByHeight(ctx context.Context) (map[int64]int, error)
}
