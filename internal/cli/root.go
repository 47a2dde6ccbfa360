package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Tier-gated MCP tool server with resilient telemetry sync",
	Long:  "Serves MCP tools behind license-tier enforcement.\nEntitlements are validated remotely and cached so short outages never block tool calls.\nTelemetry batches that cannot be delivered are queued durably and drained later.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (defaults apply when empty)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
