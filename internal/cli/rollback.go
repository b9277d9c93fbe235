package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/hotstore/internal/control"
	"github.com/vietddude/hotstore/internal/indexing/reorg"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback [height]",
	Short: "Roll back every hot block at or above height, newest first",
	Args:  cobra.ExactArgs(1),
	Run:   runRollback,
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) {
	height, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid block height: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewService(ctx, cfg, control.Options{})
	if err != nil {
		slog.Error("Failed to initialize hot store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	ok, err := app.Handler().CanRecover(ctx, height-1)
	if err != nil {
		slog.Error("Failed to inspect hot blocks", "error", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Printf("Heights from %d up are not all hot; refusing to roll back\n", height)
		os.Exit(1)
	}

	res, err := app.Handler().Rollback(ctx, height-1, reorg.ReasonManual)
	if err != nil {
		slog.Error("Rollback failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Rolled back %d blocks (%d changes), store is at height %d\n",
		len(res.Heights), res.Undone, height-1)
}
