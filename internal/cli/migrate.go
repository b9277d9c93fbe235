package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the hot-block and change-log tables",
	Run:   runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	dbCfg := cfg.Database
	dbCfg.Migrate = true

	ctx := context.Background()
	db, err := sqlstore.Open(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	fmt.Printf("Hot tables ready (%s)\n", db.Dialect.Name())
}
