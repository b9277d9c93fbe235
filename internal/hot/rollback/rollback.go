// Package rollback undoes the change log of a hot block.
//
// Entries of a height are read newest first and each one is inverted:
//
//	insert -> delete the row
//	update -> restore the captured columns
//	delete -> reinsert the captured row
//
// Reverse order is what makes repeated writes to one row converge on the
// state before the block. After the inversions the height's change-log rows
// and its hot-block record are removed in the same scope, so a committed
// rollback cannot be applied twice.
package rollback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/codec"
	"github.com/vietddude/hotstore/internal/hot/dialect"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// ErrNotHot is returned when the height has no hot-block record.
var ErrNotHot = errors.New("block is not hot")

// Beginner opens transactions.
type Beginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Result describes one rolled back height.
type Result struct {
	Height   int64
	Inserts  int // rows deleted
	Updates  int // rows restored
	Deletes  int // rows reinserted
	Duration time.Duration
}

// Undone returns the number of change records applied.
func (r *Result) Undone() int {
	return r.Inserts + r.Updates + r.Deletes
}

// Engine applies inverse operations from the change log.
type Engine struct {
	tables storage.Tables
	reg    *schema.Registry
	log    *slog.Logger
}

// NewEngine creates a rollback engine. reg is used to decode captured values
// by column kind and to find primary keys; tables it does not know are
// handled with the "id" key and untyped decoding.
func NewEngine(tables storage.Tables, reg *schema.Registry) *Engine {
	if reg == nil {
		reg = schema.NewRegistry()
	}
	return &Engine{
		tables: tables,
		reg:    reg,
		log:    slog.Default().With("component", "rollback"),
	}
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.log = l.With("component", "rollback")
	return e
}

// RollbackTx rolls back height in a transaction of its own.
func (e *Engine) RollbackTx(ctx context.Context, db Beginner, height int64) (*Result, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := e.Rollback(ctx, tx, height)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rollback of %d: %w", height, err)
	}
	metrics.HotBlocks.Dec()
	return res, nil
}

// Rollback undoes every tracked change of height through q. q must be a
// transaction for the rollback to be atomic; on error the caller aborts it
// and may retry from the still intact log.
func (e *Engine) Rollback(ctx context.Context, q storage.Queryer, height int64) (*Result, error) {
	start := time.Now()
	res, err := e.rollback(ctx, q, height)
	if err != nil {
		metrics.RollbacksTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("rollback of block %d: %w", height, err)
	}
	res.Duration = time.Since(start)

	metrics.RollbacksTotal.WithLabelValues("ok").Inc()
	metrics.RollbackDuration.Observe(res.Duration.Seconds())
	e.log.Info("Block rolled back",
		"height", height,
		"deleted", res.Inserts,
		"restored", res.Updates,
		"reinserted", res.Deletes,
		"duration", res.Duration,
	)
	return res, nil
}

func (e *Engine) rollback(ctx context.Context, q storage.Queryer, height int64) (*Result, error) {
	hot, err := e.isHot(ctx, q, height)
	if err != nil {
		return nil, err
	}
	if !hot {
		return nil, ErrNotHot
	}

	entries, err := e.entries(ctx, q, height)
	if err != nil {
		return nil, err
	}

	res := &Result{Height: height}
	for _, entry := range entries {
		if err := e.undo(ctx, q, entry.Change); err != nil {
			return nil, fmt.Errorf("undo index %d: %w", entry.Sequence, err)
		}
		switch entry.Change.(type) {
		case domain.InsertChange:
			res.Inserts++
		case domain.UpdateChange:
			res.Updates++
		case domain.DeleteChange:
			res.Deletes++
		}
		metrics.RolledBackChanges.WithLabelValues(string(entry.Change.Kind())).Inc()
	}

	if err := e.forget(ctx, q, height); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) isHot(ctx context.Context, q storage.Queryer, height int64) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE height = %s",
		e.tables.HotBlocks(), e.tables.Dialect.Placeholder(1))
	var n int
	if err := sqlx.GetContext(ctx, q, &n, query, height); err != nil {
		return false, fmt.Errorf("failed to check hot block: %w", err)
	}
	return n > 0, nil
}

type changeRow struct {
	BlockHeight int64  `db:"block_height"`
	Index       int64  `db:"index"`
	Change      string `db:"change"`
}

// entries reads the change log of height, newest first.
func (e *Engine) entries(ctx context.Context, q storage.Queryer, height int64) ([]domain.ChangeLogEntry, error) {
	query := fmt.Sprintf(
		`SELECT block_height, "index", change FROM %s WHERE block_height = %s ORDER BY "index" DESC`,
		e.tables.ChangeLog(), e.tables.Dialect.Placeholder(1),
	)
	var rows []changeRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, height); err != nil {
		return nil, fmt.Errorf("failed to read change log: %w", err)
	}

	entries := make([]domain.ChangeLogEntry, len(rows))
	for i, row := range rows {
		change, err := codec.UnmarshalChange([]byte(row.Change), e.reg)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", row.Index, err)
		}
		entries[i] = domain.ChangeLogEntry{
			BlockHeight: row.BlockHeight,
			Sequence:    row.Index,
			Change:      change,
		}
	}
	return entries, nil
}

// undo applies the inverse of a single change record.
func (e *Engine) undo(ctx context.Context, q storage.Queryer, change domain.ChangeRecord) error {
	d := e.tables.Dialect
	ref := change.Ref()
	table := d.Quote(ref.Table)
	key := d.Quote(e.primaryKey(ref.Table))

	var (
		query string
		args  []any
	)
	switch c := change.(type) {
	case domain.InsertChange:
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, key, d.Placeholder(1))
		args = []any{c.ID}
	case domain.UpdateChange:
		if len(c.Fields) == 0 {
			return nil
		}
		sets := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			sets[i] = fmt.Sprintf("%s = %s", d.Quote(f.Column), d.Placeholder(i+1))
			args = append(args, f.Value.Arg())
		}
		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			table, strings.Join(sets, ", "), key, d.Placeholder(len(c.Fields)+1))
		args = append(args, c.ID)
	case domain.DeleteChange:
		columns := append([]string{key}, dialect.QuoteAll(d, c.Fields.Columns())...)
		args = append(args, c.ID)
		for _, f := range c.Fields {
			args = append(args, f.Value.Arg())
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(columns, ", "), dialect.Placeholders(d, 1, len(columns)))
	default:
		return fmt.Errorf("%w: change %T", codec.ErrMalformedChange, change)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to undo %s of %s/%s: %w", change.Kind(), ref.Table, ref.ID, err)
	}
	return nil
}

// forget removes the height's change log and hot-block record.
func (e *Engine) forget(ctx context.Context, q storage.Queryer, height int64) error {
	ph := e.tables.Dialect.Placeholder(1)
	logQuery := fmt.Sprintf("DELETE FROM %s WHERE block_height = %s", e.tables.ChangeLog(), ph)
	if _, err := q.ExecContext(ctx, logQuery, height); err != nil {
		return fmt.Errorf("failed to clear change log: %w", err)
	}
	hotQuery := fmt.Sprintf("DELETE FROM %s WHERE height = %s", e.tables.HotBlocks(), ph)
	if _, err := q.ExecContext(ctx, hotQuery, height); err != nil {
		return fmt.Errorf("failed to remove hot block: %w", err)
	}
	return nil
}

func (e *Engine) primaryKey(table string) string {
	if ent, ok := e.reg.ByTable(table); ok {
		return ent.PrimaryKey
	}
	return schema.DefaultPrimaryKey
}
