package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/bootstrap"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "exclusionctl",
	Short: "Auto-exclusion operator CLI",
	Long: `Run exclusion detection, single-call evaluation and manual overrides
directly against the compliance database.

Environment Variables:
  DATABASE_URL      - connection string
  DATABASE_DRIVER   - postgres (default) or sqlite
  REDIS_URL         - optional shared threshold cache
  NATS_URL          - optional exclusion event stream`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("EXCLUSION_CONFIG_PATH"), "Path to config file")
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	if err := config.LoadConfig(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return bootstrap.New(ctx, config.App)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseCallID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid call id: %q", arg)
	}
	return id, nil
}
