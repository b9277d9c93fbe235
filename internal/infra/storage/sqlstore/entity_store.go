package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vietddude/hotstore/internal/hot/codec"
	"github.com/vietddude/hotstore/internal/hot/dialect"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// maxParams keeps multi-row statements under the bind limit of both engines.
const maxParams = 32000

// EntityStore writes and reads entity rows described by the schema registry.
type EntityStore struct {
	q   storage.Queryer
	d   dialect.Dialect
	reg *schema.Registry
}

// NewEntityStore creates an entity store running its statements through q.
func NewEntityStore(q storage.Queryer, d dialect.Dialect, reg *schema.Registry) *EntityStore {
	return &EntityStore{q: q, d: d, reg: reg}
}

// Insert inserts rows that must not exist yet.
func (s *EntityStore) Insert(ctx context.Context, entity string, rows []schema.Row) error {
	return s.write(ctx, entity, rows, false)
}

// Upsert inserts rows or replaces the full field set of existing ones.
func (s *EntityStore) Upsert(ctx context.Context, entity string, rows []schema.Row) error {
	return s.write(ctx, entity, rows, true)
}

func (s *EntityStore) write(ctx context.Context, entity string, rows []schema.Row, upsert bool) error {
	if len(rows) == 0 {
		return nil
	}
	e, err := s.reg.Resolve(entity)
	if err != nil {
		return err
	}

	width := len(e.Columns) + 1
	columns := dialect.QuoteAll(s.d, append([]string{e.PrimaryKey}, e.ColumnNames()...))
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", s.d.Quote(e.Table), strings.Join(columns, ", "))

	var tail string
	if upsert {
		sets := make([]string, len(e.Columns))
		for i, c := range e.Columns {
			col := s.d.Quote(c.Name)
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		}
		tail = fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", s.d.Quote(e.PrimaryKey), strings.Join(sets, ", "))
	}

	op := "insert_" + e.Table
	if upsert {
		op = "upsert_" + e.Table
	}
	metrics.DBBatchSize.WithLabelValues(op).Observe(float64(len(rows)))

	for _, chunk := range chunkRows(rows, maxParams/width) {
		tuples := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*width)
		for i, row := range chunk {
			if len(row.Values) != len(e.Columns) {
				return fmt.Errorf("%w: %s row %s has %d values for %d columns",
					schema.ErrInvalidEntity, e.Name, row.ID, len(row.Values), len(e.Columns))
			}
			tuples[i] = "(" + dialect.Placeholders(s.d, len(args)+1, width) + ")"
			args = append(args, row.ID)
			for j, c := range e.Columns {
				p, err := codec.Param(c.Kind, row.Values[j])
				if err != nil {
					return fmt.Errorf("%s.%s: %w", e.Table, c.Name, err)
				}
				args = append(args, p)
			}
		}

		query := head + strings.Join(tuples, ", ") + tail
		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write %s rows: %w", e.Table, err)
		}
	}
	return nil
}

// Delete removes the rows with the given ids.
func (s *EntityStore) Delete(ctx context.Context, entity string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	e, err := s.reg.Resolve(entity)
	if err != nil {
		return err
	}

	metrics.DBBatchSize.WithLabelValues("delete_" + e.Table).Observe(float64(len(ids)))

	for start := 0; start < len(ids); start += maxParams {
		end := min(start+maxParams, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
			s.d.Quote(e.Table), s.d.Quote(e.PrimaryKey), dialect.Placeholders(s.d, 1, len(chunk)))
		if _, err := s.q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete %s rows: %w", e.Table, err)
		}
	}
	return nil
}

// Find loads the rows with the given ids in a single query. Missing ids are
// simply absent from the result; order is unspecified.
func (s *EntityStore) Find(ctx context.Context, e *schema.Entity, ids []string) ([]schema.Row, error) {
	query, args, err := s.d.SelectByIDs(s.d.Quote(e.Table), e.PrimaryKey, e.ColumnNames(), ids)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s rows: %w", e.Table, err)
	}
	defer rows.Close()

	var out []schema.Row
	for rows.Next() {
		var id string
		dest := make([]any, len(e.Columns)+1)
		dest[0] = &id
		for i, c := range e.Columns {
			dest[i+1] = scanTarget(c.Kind)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", e.Table, err)
		}

		values := make([]any, len(e.Columns))
		for i := range e.Columns {
			values[i] = scannedValue(dest[i+1])
		}
		out = append(out, schema.Row{ID: id, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", e.Table, err)
	}
	return out, nil
}

// FindOne loads a single row by id, nil if it does not exist.
func (s *EntityStore) FindOne(ctx context.Context, entity, id string) (*schema.Row, error) {
	e, err := s.reg.Resolve(entity)
	if err != nil {
		return nil, err
	}
	rows, err := s.Find(ctx, e, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func scanTarget(kind schema.Kind) any {
	switch kind {
	case schema.KindInt:
		return new(sql.NullInt64)
	case schema.KindFloat:
		return new(sql.NullFloat64)
	case schema.KindBool:
		return new(sql.NullBool)
	case schema.KindBinary:
		return new([]byte)
	default:
		return new(sql.NullString)
	}
}

func scannedValue(dest any) any {
	switch v := dest.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullFloat64:
		if v.Valid {
			return v.Float64
		}
	case *sql.NullBool:
		if v.Valid {
			return v.Bool
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	case *[]byte:
		if *v != nil {
			return *v
		}
	}
	return nil
}

func chunkRows(rows []schema.Row, size int) [][]schema.Row {
	if size < 1 {
		size = 1
	}
	var chunks [][]schema.Row
	for start := 0; start < len(rows); start += size {
		chunks = append(chunks, rows[start:min(start+size, len(rows))])
	}
	return chunks
}
