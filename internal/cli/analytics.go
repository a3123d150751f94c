package cli

import (
	"github.com/spf13/cobra"

	"github.com/monorkin/greenhouse-monitor/internal/app"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show 24h averages, 7-day trends, recent alerts and totals",
	Args:  cobra.NoArgs,
	Run: withApp(false, func(cmd *cobra.Command, args []string, application *app.App) error {
		report, err := application.Analytics.Report(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(report)
	}),
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
}
