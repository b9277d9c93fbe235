package dialect

import (
	"encoding/json"
	"fmt"
)

// SQLite targets the embedded single-file engine through mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Quote(ident string) string { return quoteIdent(ident) }

// QuoteTable ignores schema: a sqlite file has a single namespace.
func (s SQLite) QuoteTable(_ string, table string) string { return s.Quote(table) }

func (SQLite) Placeholder(int) string { return "?" }

// SelectByIDs binds all ids as one JSON array expanded by json_each.
func (s SQLite) SelectByIDs(table, key string, columns, ids []string) (string, []any, error) {
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode ids: %w", err)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IN (SELECT value FROM json_each(?))",
		selectList(s, key, columns), table, s.Quote(key),
	)
	return query, []any{string(payload)}, nil
}

// InsertChangeRows sends the rows as a JSON array of [height, index, change]
// triples unpacked row by row with json_extract.
func (SQLite) InsertChangeRows(table string, rows []ChangeRow) (string, []any, error) {
	triples := make([][3]any, len(rows))
	for i, r := range rows {
		triples[i] = [3]any{r.BlockHeight, r.Index, r.Change}
	}
	payload, err := json.Marshal(triples)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode change rows: %w", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s ("block_height", "index", "change") SELECT `+
			`json_extract(j.value, '$[0]'), `+
			`json_extract(j.value, '$[1]'), `+
			`json_extract(j.value, '$[2]') `+
			`FROM json_each(?) j`,
		table,
	)
	return query, []any{string(payload)}, nil
}
