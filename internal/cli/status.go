package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/config"
	"github.com/ppiankov/toolgate/internal/license"
	"github.com/ppiankov/toolgate/internal/store"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved entitlement and sync queue depth",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	validator := license.NewValidator(cfg, st)
	ent, src := validator.Resolve(ctx)

	info := map[string]any{
		"tier":   ent.Tier.String(),
		"source": string(src),
	}
	if len(ent.Features) > 0 {
		info["features"] = ent.Features
	}
	if ent.ValidUntil != nil {
		info["valid_until"] = ent.ValidUntil.Format(time.RFC3339)
	}
	if n, err := st.PendingCount(ctx); err == nil {
		info["pending_sync"] = n
	}
	info["sync_enabled"] = cfg.SyncConfigured()

	out, _ := json.MarshalIndent(info, "", "  ")
	fmt.Println(string(out))
	return nil
}
