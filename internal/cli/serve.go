package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/license"
	"github.com/ppiankov/toolgate/internal/mcp"
	"github.com/ppiankov/toolgate/internal/spool"
	"github.com/ppiankov/toolgate/internal/store"
	"github.com/ppiankov/toolgate/internal/telemetry"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server on stdio",
	Long:  "Runs toolgate as an MCP (Model Context Protocol) server over stdio.\nEvery tool call is checked against the caller's entitlement tier.\nUsage records are flushed on a timer and queued when the sync endpoint is down.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	validator := license.NewValidator(cfg, st)
	syncClient := telemetry.NewClient(cfg, st, log)
	srv := mcp.New(cfg, st, validator, syncClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Spool watcher picks up batch files dropped by other processes.
	watcher := spool.NewWatcher(cfg.SpoolDir(), syncClient.Push, log)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("spool watcher stopped", "error", err)
		}
	}()

	// Periodic flush of in-process records plus a drain of anything
	// queued from earlier failures. One drain up front so a backlog
	// from the previous run does not wait a full interval.
	go func() {
		if _, err := syncClient.Drain(ctx); err != nil {
			log.Warn("startup drain failed", "error", err)
		}
		ticker := time.NewTicker(cfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.FlushRecords(ctx)
				if stats, err := syncClient.Drain(ctx); err != nil {
					log.Warn("drain failed", "error", err)
				} else if stats.Attempted > 0 {
					log.Info("drained queued batches",
						"attempted", stats.Attempted,
						"delivered", stats.Delivered,
						"failed", stats.Failed)
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	ent, src := validator.Resolve(ctx)
	fmt.Fprintln(os.Stderr, "toolgate MCP server running on stdio")
	fmt.Fprintf(os.Stderr, "Tier: %s (%s)\n", ent.Tier, src)
	fmt.Fprintln(os.Stderr)

	err = srv.Run(ctx)

	// Last flush so records from this session are not lost. Queued on
	// failure, so a dead endpoint at shutdown is fine.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer flushCancel()
	srv.FlushRecords(flushCtx)

	if ctx.Err() != nil {
		return nil
	}
	return err
}
