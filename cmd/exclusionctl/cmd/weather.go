package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/weather"
)

var weatherStates []string

var weatherSyncCmd = &cobra.Command{
	Use:   "weather-sync",
	Short: "Fetch active weather alerts once and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		states := weatherStates
		if len(states) == 0 {
			states = config.App.Weather.States
		}
		if len(states) == 0 {
			return fmt.Errorf("no states given; use --state or WEATHER_STATES")
		}

		client := weather.NewClient(config.App.Weather.FeedURL, config.App.Weather.UserAgent, config.App.Weather.RPS)
		n, err := weather.Sync(cmd.Context(), client, app.Backend, states)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "[OK] stored %d alerts\n", n)
		return nil
	},
}

func init() {
	weatherSyncCmd.Flags().StringSliceVar(&weatherStates, "state", nil, "Two-letter state code (repeatable)")
	rootCmd.AddCommand(weatherSyncCmd)
}
