package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/hotstore/internal/core/worker"
	redisclient "github.com/vietddude/hotstore/internal/infra/redis"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the hot blocks and their change counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	repo := db.HotBlocks()
	blocks, err := repo.List(ctx)
	if err != nil {
		slog.Error("Failed to list hot blocks", "error", err)
		os.Exit(1)
	}
	snap, err := worker.Collect(ctx, repo)
	if err != nil {
		slog.Error("Failed to count changes", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HEIGHT\tHASH\tPARENT\tCHANGES")
	for _, b := range blocks {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", b.Height, b.Hash, b.ParentHash, snap.ChangesByHeight[b.Height])
	}
	_ = w.Flush()
	fmt.Printf("\n%d hot blocks, %d change-log entries\n", snap.HotBlocks, snap.Entries)

	if !cfg.RedisEnabled() {
		return
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("Failed to connect to redis", "error", err)
		return
	}
	defer func() {
		_ = client.Close()
	}()

	failed, err := redisclient.NewFailedRollbackRepo(client).GetAll(ctx)
	if err != nil {
		slog.Warn("Failed to read failed rollbacks", "error", err)
		return
	}
	if len(failed) == 0 {
		return
	}
	fmt.Println("\nFailed rollbacks:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HEIGHT\tSAFE\tATTEMPTS\tLAST\tERROR")
	for _, f := range failed {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n",
			f.Height, f.SafeHeight, f.Attempts, f.LastAttempt.Format("2006-01-02 15:04:05"), f.Error)
	}
	_ = w.Flush()
}
