// Package hottest provides an in-memory SQLite fixture for tests that track
// and roll back real rows.
package hottest

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/hotstore/internal/hot/dialect"
	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/infra/storage"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

const accountDDL = `CREATE TABLE account (
    id      TEXT PRIMARY KEY,
    balance INTEGER,
    owner   TEXT,
    code    BLOB,
    meta    TEXT
)`

// Account declares the fixture table.
func Account() schema.Entity {
	return schema.Entity{
		Name:  "Account",
		Table: "account",
		Columns: []schema.Column{
			{Name: "balance", Kind: schema.KindInt},
			{Name: "owner", Kind: schema.KindText},
			{Name: "code", Kind: schema.KindBinary},
			{Name: "meta", Kind: schema.KindJSON},
		},
	}
}

// Registry returns a registry holding Account.
func Registry() *schema.Registry {
	return schema.NewRegistry(Account())
}

// Row builds an Account row.
func Row(id string, balance int64, owner string, code []byte, meta string) schema.Row {
	var m any
	if meta != "" {
		m = meta
	}
	var c any
	if code != nil {
		c = code
	}
	return schema.Row{ID: id, Values: []any{balance, owner, c, m}}
}

// Open returns a migrated in-memory database with the account table.
func Open(t *testing.T) *sqlstore.DB {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, sqlstore.Config{Driver: "sqlite3", URL: ":memory:", Migrate: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, accountDDL); err != nil {
		t.Fatalf("failed to create account table: %v", err)
	}
	return db
}

// Begin opens a transaction that is rolled back at cleanup unless committed.
func Begin(t *testing.T, db *sqlstore.DB) *sqlx.Tx {
	t.Helper()
	tx, err := db.BeginTxx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	t.Cleanup(func() { _ = tx.Rollback() })
	return tx
}

// Counter counts statements sent through a Queryer.
type Counter struct {
	storage.Queryer
	execs   atomic.Int64
	queries atomic.Int64
}

// Count wraps q.
func Count(q storage.Queryer) *Counter {
	return &Counter{Queryer: q}
}

func (c *Counter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.execs.Add(1)
	return c.Queryer.ExecContext(ctx, query, args...)
}

func (c *Counter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries.Add(1)
	return c.Queryer.QueryContext(ctx, query, args...)
}

func (c *Counter) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	c.queries.Add(1)
	return c.Queryer.QueryxContext(ctx, query, args...)
}

func (c *Counter) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	c.queries.Add(1)
	return c.Queryer.QueryRowxContext(ctx, query, args...)
}

// Execs returns the number of statements executed.
func (c *Counter) Execs() int64 { return c.execs.Load() }

// Queries returns the number of queries issued.
func (c *Counter) Queries() int64 { return c.queries.Load() }

// Reset zeroes both counters.
func (c *Counter) Reset() {
	c.execs.Store(0)
	c.queries.Store(0)
}

// Snapshot reads every account row keyed by id.
func Snapshot(t *testing.T, q storage.Queryer) map[string]schema.Row {
	t.Helper()
	reg := Registry()
	e, _ := reg.Resolve("Account")

	var ids []string
	if err := sqlx.SelectContext(context.Background(), q, &ids, `SELECT id FROM account`); err != nil {
		t.Fatalf("failed to list accounts: %v", err)
	}
	rows, err := sqlstore.NewEntityStore(q, dialect.SQLite{}, reg).Find(context.Background(), e, ids)
	if err != nil {
		t.Fatalf("failed to read accounts: %v", err)
	}
	out := make(map[string]schema.Row, len(rows))
	for _, r := range rows {
		out[r.ID] = r
	}
	return out
}

// ChangeLog returns the stored change texts of height in index order.
func ChangeLog(t *testing.T, q storage.Queryer, height int64) []string {
	t.Helper()
	var texts []string
	err := sqlx.SelectContext(context.Background(), q, &texts,
		`SELECT change FROM hot_change_log WHERE block_height = ? ORDER BY "index"`, height)
	if err != nil {
		t.Fatalf("failed to read change log: %v", err)
	}
	return texts
}
