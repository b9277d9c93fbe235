// Package dialect hides the SQL differences between the supported engines:
// identifier quoting, placeholder syntax and the single-statement bulk
// operations the change tracker relies on.
package dialect

import (
	"fmt"
	"strings"
)

// ChangeRow is one change-log row ready to be written.
type ChangeRow struct {
	BlockHeight int64
	Index       int64
	Change      string
}

// Dialect builds engine-specific SQL. Every bulk method produces exactly one
// statement regardless of the number of rows. Table arguments are expected to
// be quoted already (see QuoteTable).
type Dialect interface {
	// Name is the database/sql driver family, also used as the goose dialect.
	Name() string

	// Quote quotes a single identifier.
	Quote(ident string) string

	// QuoteTable quotes a table, qualifying it with schema where supported.
	QuoteTable(schema, table string) string

	// Placeholder returns the bind marker for the 1-based position n.
	Placeholder(n int) string

	// SelectByIDs fetches key plus columns for every id in one query.
	SelectByIDs(table, key string, columns, ids []string) (string, []any, error)

	// InsertChangeRows appends rows to the change-log table in one statement.
	InsertChangeRows(table string, rows []ChangeRow) (string, []any, error)
}

// ForDriver returns the dialect for a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres{}, nil
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Placeholders renders count bind markers starting at position start.
func Placeholders(d Dialect, start, count int) string {
	marks := make([]string, count)
	for i := range marks {
		marks[i] = d.Placeholder(start + i)
	}
	return strings.Join(marks, ", ")
}

// QuoteAll quotes every identifier in idents.
func QuoteAll(d Dialect, idents []string) []string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return out
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func selectList(d Dialect, key string, columns []string) string {
	return strings.Join(append([]string{d.Quote(key)}, QuoteAll(d, columns)...), ", ")
}
