package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/spool"
	"github.com/ppiankov/toolgate/internal/store"
	"github.com/ppiankov/toolgate/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain queued telemetry batches now",
	Long:  "Sweeps the spool directory and retries every queued batch once.\nBatches that still fail stay in the queue for the next run.",
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.SyncConfigured() {
		fmt.Println("sync disabled: no license key or sync endpoint configured")
		return nil
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	client := telemetry.NewClient(cfg, st, log)
	ctx := context.Background()

	spool.NewWatcher(cfg.SpoolDir(), client.Push, log).Sweep(ctx)

	stats, err := client.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain failed: %w", err)
	}

	fmt.Printf("attempted %d, delivered %d, failed %d\n",
		stats.Attempted, stats.Delivered, stats.Failed)
	if n, err := st.PendingCount(ctx); err == nil {
		fmt.Printf("still pending: %d\n", n)
	}
	return nil
}
