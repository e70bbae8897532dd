package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/bootstrap"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		_, conn, driver, err := bootstrap.OpenStore(config.App)
		if err != nil {
			return err
		}
		defer conn.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "[OK] %s schema is up to date\n", driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
