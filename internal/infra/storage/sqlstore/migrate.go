package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"path"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/hotstore/internal/hot/dialect"
)

//go:embed migrations/*/*.sql
var migrations embed.FS

// Migrate creates the hot-block and change-log tables.
func (db *DB) Migrate(ctx context.Context) error {
	if _, isPG := db.Dialect.(dialect.Postgres); isPG && db.Tables.Schema != "" {
		stmt := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", db.Dialect.Quote(db.Tables.Schema))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(db.Dialect.Name()); err != nil {
		return err
	}
	dir := path.Join("migrations", db.Dialect.Name())
	if err := goose.UpContext(ctx, db.DB.DB, dir); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	slog.Debug("Hot tables migrated", "dialect", db.Dialect.Name())
	return nil
}
