package dialect

import (
	"fmt"
	"strconv"

	"github.com/lib/pq"
)

// Postgres targets PostgreSQL through lib/pq or pgx.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string { return quoteIdent(ident) }

func (p Postgres) QuoteTable(schema, table string) string {
	if schema == "" {
		return p.Quote(table)
	}
	return p.Quote(schema) + "." + p.Quote(table)
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// SelectByIDs binds all ids as one text array.
func (p Postgres) SelectByIDs(table, key string, columns, ids []string) (string, []any, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ANY($1::text[])",
		selectList(p, key, columns), table, p.Quote(key),
	)
	return query, []any{pq.Array(ids)}, nil
}

// InsertChangeRows sends the rows as three column arrays unpacked by unnest.
func (p Postgres) InsertChangeRows(table string, rows []ChangeRow) (string, []any, error) {
	heights := make([]int64, len(rows))
	indexes := make([]int64, len(rows))
	changes := make([]string, len(rows))
	for i, r := range rows {
		heights[i] = r.BlockHeight
		indexes[i] = r.Index
		changes[i] = r.Change
	}

	query := fmt.Sprintf(
		`INSERT INTO %s ("block_height", "index", "change") `+
			`SELECT "block_height", "index", "change"::jsonb `+
			`FROM unnest($1::bigint[], $2::bigint[], $3::text[]) AS i("block_height", "index", "change")`,
		table,
	)
	return query, []any{pq.Array(heights), pq.Array(indexes), pq.Array(changes)}, nil
}
