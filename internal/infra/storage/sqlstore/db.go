// Package sqlstore implements storage for the hot-block engine on top of
// database/sql: PostgreSQL through pgx or lib/pq, and SQLite through
// mattn/go-sqlite3.
package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // driver "postgres"
	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"

	"github.com/vietddude/hotstore/internal/hot/dialect"
	"github.com/vietddude/hotstore/internal/indexing/metrics"
	"github.com/vietddude/hotstore/internal/infra/storage"
)

// Config holds database connection configuration.
type Config struct {
	Driver   string `yaml:"driver"` // pgx, postgres or sqlite3
	URL      string `yaml:"url"`
	Schema   string `yaml:"schema"` // postgres only
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// DB wraps the connection pool together with its dialect.
type DB struct {
	*sqlx.DB
	Dialect dialect.Dialect
	Tables  storage.Tables
}

// Open creates a new database connection.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = "pgx"
	}
	d, err := dialect.ForDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.URL
	if _, isPG := d.(dialect.Postgres); isPG && cfg.Schema != "" {
		dsn, err = withSearchPath(dsn, cfg.Schema)
		if err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, isSQLite := d.(dialect.SQLite); isSQLite {
		// A single writer; keeping the connection alive also keeps
		// in-memory databases alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		} else {
			db.SetMaxOpenConns(10)
		}
		if cfg.MinConns > 0 {
			db.SetMaxIdleConns(cfg.MinConns)
		} else {
			db.SetMaxIdleConns(2)
		}
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := cfg.Schema
	if _, isSQLite := d.(dialect.SQLite); isSQLite {
		schema = ""
	}
	out := &DB{
		DB:      db,
		Dialect: d,
		Tables:  storage.Tables{Dialect: d, Schema: schema},
	}

	if cfg.Migrate {
		if err := out.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return out, nil
}

// withSearchPath adds search_path as a runtime parameter; both pgx and lib/pq
// forward unknown URL parameters to the server.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse database url: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StartMetricsCollector starts a background goroutine to collect DB metrics.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := db.Stats()
				if stats.MaxOpenConnections > 0 {
					usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections) * 100
					metrics.DBConnectionPoolUsage.Set(usage)
				}
			}
		}
	}()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
