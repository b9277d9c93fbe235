// Package tracker records the row-level effects of one hot block so that they
// can be undone later by the rollback package.
//
// A Tracker is created per block-application session and must be called
// before the corresponding write reaches the live store:
//
//	t := tracker.New(tx, tables, reg, entities, height)
//	if err := t.TrackUpsert(ctx, "Account", rows); err != nil { ... }
//	if err := entities.Upsert(ctx, "Account", rows); err != nil { ... }
//
// The tracker never opens or commits transactions. Log rows and the tracked
// writes become durable together only if the caller runs both in one scope.
package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/hotstore/internal/core/domain"
	"github.com/vietddude/hotstore/internal/hot/codec"
	"github.com/vietddude/hotstore/internal/hot/dialect"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// Fetcher loads current rows by id in a single round trip.
type Fetcher interface {
	Find(ctx context.Context, e *schema.Entity, ids []string) ([]schema.Row, error)
}

// Tracker appends change records for one block height. It is not safe for
// concurrent use; one block is applied by one writer.
type Tracker struct {
	q       storage.Queryer
	tables  storage.Tables
	reg     *schema.Registry
	fetcher Fetcher
	height  int64
	seq     int64
	log     *slog.Logger
}

// New creates a tracker for height. Sequence numbers start at 0.
func New(
	q storage.Queryer,
	tables storage.Tables,
	reg *schema.Registry,
	fetcher Fetcher,
	height int64,
) *Tracker {
	return &Tracker{
		q:       q,
		tables:  tables,
		reg:     reg,
		fetcher: fetcher,
		height:  height,
		log:     slog.Default().With("component", "tracker", "height", height),
	}
}

// WithLogger replaces the tracker's logger.
func (t *Tracker) WithLogger(l *slog.Logger) *Tracker {
	t.log = l.With("component", "tracker", "height", t.height)
	return t
}

// Height returns the block height being tracked.
func (t *Tracker) Height() int64 { return t.height }

// Sequence returns the sequence number the next change record will get.
func (t *Tracker) Sequence() int64 { return t.seq }

// TrackInsert records rows the caller knows to be new. No pre-image is read.
func (t *Tracker) TrackInsert(ctx context.Context, entity string, rows []schema.Row) error {
	e, err := t.reg.Resolve(entity)
	if err != nil {
		return err
	}

	changes := make([]domain.ChangeRecord, len(rows))
	for i, row := range rows {
		changes[i] = domain.InsertChange{RowRef: domain.RowRef{Table: e.Table, ID: row.ID}}
	}
	return t.append(ctx, e, changes)
}

// TrackUpsert records rows about to be inserted or fully replaced. Ids that
// already exist get an update record carrying their complete current row;
// the rest get an insert record.
func (t *Tracker) TrackUpsert(ctx context.Context, entity string, rows []schema.Row) error {
	e, err := t.reg.Resolve(entity)
	if err != nil {
		return err
	}

	existing, err := t.preImages(ctx, e, schema.IDs(rows))
	if err != nil {
		return err
	}

	changes := make([]domain.ChangeRecord, len(rows))
	for i, row := range rows {
		ref := domain.RowRef{Table: e.Table, ID: row.ID}
		if fields, ok := existing[row.ID]; ok {
			changes[i] = domain.UpdateChange{RowRef: ref, Fields: fields}
		} else {
			changes[i] = domain.InsertChange{RowRef: ref}
		}
	}
	return t.append(ctx, e, changes)
}

// TrackDelete records rows about to be deleted together with their complete
// current state. Ids with no current row have nothing to restore and are skipped.
func (t *Tracker) TrackDelete(ctx context.Context, entity string, ids []string) error {
	e, err := t.reg.Resolve(entity)
	if err != nil {
		return err
	}

	existing, err := t.preImages(ctx, e, ids)
	if err != nil {
		return err
	}

	changes := make([]domain.ChangeRecord, 0, len(existing))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		fields, ok := existing[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		changes = append(changes, domain.DeleteChange{
			RowRef: domain.RowRef{Table: e.Table, ID: id},
			Fields: fields,
		})
	}
	if skipped := len(ids) - len(changes); skipped > 0 {
		t.log.Debug("Delete of absent or repeated rows not tracked", "table", e.Table, "skipped", skipped)
	}
	return t.append(ctx, e, changes)
}

// preImages fetches the current rows for ids in one query, keyed by id.
func (t *Tracker) preImages(ctx context.Context, e *schema.Entity, ids []string) (map[string]domain.Fields, error) {
	metrics.PreImageFetches.WithLabelValues(e.Table).Inc()

	rows, err := t.fetcher.Find(ctx, e, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pre-images of %s: %w", e.Table, err)
	}

	out := make(map[string]domain.Fields, len(rows))
	for _, row := range rows {
		fields, err := capture(e, row)
		if err != nil {
			return nil, err
		}
		out[row.ID] = fields
	}
	return out, nil
}

func capture(e *schema.Entity, row schema.Row) (domain.Fields, error) {
	if len(row.Values) != len(e.Columns) {
		return nil, fmt.Errorf("%w: %s row %s has %d values for %d columns",
			schema.ErrInvalidEntity, e.Name, row.ID, len(row.Values), len(e.Columns))
	}
	fields := make(domain.Fields, len(e.Columns))
	for i, c := range e.Columns {
		v, err := codec.Encode(c.Kind, row.Values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s of %s: %w", e.Table, c.Name, row.ID, err)
		}
		fields[i] = domain.Field{Column: c.Name, Value: v}
	}
	return fields, nil
}

// append writes changes to the change log in one statement. The sequence
// counter only advances once the write succeeded.
func (t *Tracker) append(ctx context.Context, e *schema.Entity, changes []domain.ChangeRecord) error {
	rows := make([]dialect.ChangeRow, len(changes))
	for i, c := range changes {
		text, err := codec.MarshalChange(c)
		if err != nil {
			return fmt.Errorf("failed to encode change of %s/%s: %w", c.Ref().Table, c.Ref().ID, err)
		}
		rows[i] = dialect.ChangeRow{
			BlockHeight: t.height,
			Index:       t.seq + int64(i),
			Change:      text,
		}
	}

	query, args, err := t.tables.Dialect.InsertChangeRows(t.tables.ChangeLog(), rows)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write change log: %w", err)
	}
	t.seq += int64(len(rows))

	metrics.DBBatchSize.WithLabelValues("change_log").Observe(float64(len(rows)))
	for _, c := range changes {
		metrics.TrackedChanges.WithLabelValues(e.Table, string(c.Kind())).Inc()
	}
	t.log.Debug("Changes tracked", "table", e.Table, "count", len(rows), "next_index", t.seq)
	return nil
}
