package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

var (
	detectParish int64
	detectStart  string
	detectEnd    string
	detectApply  bool
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Evaluate a parish's unexcluded calls over a date range",
	Long: `Evaluate every unexcluded call for a parish and report which ones the
engine would exclude. Nothing is written unless --apply is given.

Examples:
  exclusionctl detect --parish 1
  exclusionctl detect --parish 1 --start 2025-06-01 --end 2025-06-30 --apply`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		resp, err := app.Exclusions.Detect(cmd.Context(), db.DetectRequest{
			ParishID:        detectParish,
			StartDate:       detectStart,
			EndDate:         detectEnd,
			ApplyExclusions: detectApply,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Release AUTO exclusions that no longer hold",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		resp, err := app.Exclusions.Reconcile(cmd.Context(), db.DetectRequest{
			ParishID:  detectParish,
			StartDate: detectStart,
			EndDate:   detectEnd,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func init() {
	for _, c := range []*cobra.Command{detectCmd, reconcileCmd} {
		c.Flags().Int64Var(&detectParish, "parish", 0, "Parish ID")
		c.Flags().StringVar(&detectStart, "start", "", "First day, YYYY-MM-DD (default: 29 days before --end)")
		c.Flags().StringVar(&detectEnd, "end", "", "Last day, YYYY-MM-DD (default: today)")
		_ = c.MarkFlagRequired("parish")
		rootCmd.AddCommand(c)
	}
	detectCmd.Flags().BoolVar(&detectApply, "apply", false, "Persist the exclusions")
}
