package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

var (
	evaluateApply bool
	manualActor   string
	manualReason  string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <call-id>",
	Short: "Run the strategies against one call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callID, err := parseCallID(args[0])
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := app.Exclusions.EvaluateCall(cmd.Context(), callID, evaluateApply)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

func manualCommand(use, short, action string) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <call-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callID, err := parseCallID(args[0])
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			call, err := app.Exclusions.ManualExclusion(cmd.Context(), callID, manualActor, db.ManualExclusionRequest{
				Action: action,
				Reason: manualReason,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, call)
		},
	}
	c.Flags().StringVar(&manualActor, "actor", "", "Who is making the change (email)")
	c.Flags().StringVar(&manualReason, "reason", "", "Why")
	_ = c.MarkFlagRequired("actor")
	_ = c.MarkFlagRequired("reason")
	return c
}

var historyCmd = &cobra.Command{
	Use:   "history <call-id>",
	Short: "Show the exclusion audit trail for a call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		callID, err := parseCallID(args[0])
		if err != nil {
			return err
		}
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		entries, err := app.Exclusions.History(cmd.Context(), callID)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"call_id": callID,
			"entries": entries,
			"total":   len(entries),
		})
	},
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateApply, "apply", false, "Persist the decision")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(manualCommand("exclude", "Manually exclude a call", "exclude"))
	rootCmd.AddCommand(manualCommand("unexclude", "Revert a manual exclusion", "unexclude"))
	rootCmd.AddCommand(historyCmd)
}
