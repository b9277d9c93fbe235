package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// HotBlockRepo implements storage.HotBlockRepository and storage.ChangeLogStats.
type HotBlockRepo struct {
	q      storage.Queryer
	tables storage.Tables
}

// NewHotBlockRepo creates a repository running its statements through q.
func NewHotBlockRepo(q storage.Queryer, tables storage.Tables) *HotBlockRepo {
	return &HotBlockRepo{q: q, tables: tables}
}

// HotBlocks returns a repository running outside any transaction.
func (db *DB) HotBlocks() *HotBlockRepo {
	return NewHotBlockRepo(db.DB, db.Tables)
}

type hotBlockRow struct {
	Height     int64  `db:"height"`
	Hash       string `db:"hash"`
	ParentHash string `db:"parent_hash"`
}

func (r *hotBlockRow) toDomain() domain.HotBlock {
	return domain.HotBlock{
		Height:     r.Height,
		Hash:       r.Hash,
		ParentHash: r.ParentHash,
	}
}

func (r *HotBlockRepo) ph(n int) string {
	return r.tables.Dialect.Placeholder(n)
}

// Insert records a height as hot.
func (r *HotBlockRepo) Insert(ctx context.Context, block domain.HotBlock) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (height, hash, parent_hash) VALUES (%s, %s, %s)`,
		r.tables.HotBlocks(), r.ph(1), r.ph(2), r.ph(3),
	)
	if _, err := r.q.ExecContext(ctx, query, block.Height, block.Hash, block.ParentHash); err != nil {
		return fmt.Errorf("failed to insert hot block %d: %w", block.Height, err)
	}
	return nil
}

// Get retrieves a hot block by height.
func (r *HotBlockRepo) Get(ctx context.Context, height int64) (*domain.HotBlock, error) {
	query := fmt.Sprintf(
		`SELECT height, hash, parent_hash FROM %s WHERE height = %s`,
		r.tables.HotBlocks(), r.ph(1),
	)
	var row hotBlockRow
	err := sqlx.GetContext(ctx, r.q, &row, query, height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not hot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hot block: %w", err)
	}
	b := row.toDomain()
	return &b, nil
}

// Latest retrieves the highest hot block.
func (r *HotBlockRepo) Latest(ctx context.Context) (*domain.HotBlock, error) {
	query := fmt.Sprintf(
		`SELECT height, hash, parent_hash FROM %s ORDER BY height DESC LIMIT 1`,
		r.tables.HotBlocks(),
	)
	var row hotBlockRow
	err := sqlx.GetContext(ctx, r.q, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest hot block: %w", err)
	}
	b := row.toDomain()
	return &b, nil
}

// Above lists hot blocks higher than height, newest first.
func (r *HotBlockRepo) Above(ctx context.Context, height int64) ([]domain.HotBlock, error) {
	query := fmt.Sprintf(
		`SELECT height, hash, parent_hash FROM %s WHERE height > %s ORDER BY height DESC`,
		r.tables.HotBlocks(), r.ph(1),
	)
	return r.selectBlocks(ctx, query, height)
}

// List lists all hot blocks, oldest first.
func (r *HotBlockRepo) List(ctx context.Context) ([]domain.HotBlock, error) {
	query := fmt.Sprintf(
		`SELECT height, hash, parent_hash FROM %s ORDER BY height ASC`,
		r.tables.HotBlocks(),
	)
	return r.selectBlocks(ctx, query)
}

func (r *HotBlockRepo) selectBlocks(ctx context.Context, query string, args ...any) ([]domain.HotBlock, error) {
	var rows []hotBlockRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list hot blocks: %w", err)
	}
	blocks := make([]domain.HotBlock, len(rows))
	for i := range rows {
		blocks[i] = rows[i].toDomain()
	}
	return blocks, nil
}

// CountByHeight returns the number of change-log rows per height.
func (r *HotBlockRepo) CountByHeight(ctx context.Context) (map[int64]int, error) {
	query := fmt.Sprintf(
		`SELECT block_height, COUNT(*) AS changes FROM %s GROUP BY block_height`,
		r.tables.ChangeLog(),
	)
	var rows []struct {
		BlockHeight int64 `db:"block_height"`
		Changes     int   `db:"changes"`
	}
	if err := sqlx.SelectContext(ctx, r.q, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.BlockHeight] = row.Changes
	}
	return counts, nil
}
