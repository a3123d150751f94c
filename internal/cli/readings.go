package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/monorkin/greenhouse-monitor/internal/app"
	"github.com/monorkin/greenhouse-monitor/internal/classifier"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

var (
	ingestInput storage.ReadingInput

	historyFrom  string
	historyTo    string
	historyLimit int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store a reading",
	Long: `Validate and store one reading. A reading identical to one stored within the
last 30 seconds is reported as a duplicate and not stored again.

Example:
  greenhouse-monitor ingest --humidity 55 --temperature 24.5 --soil 48 --light 1200`,
	Args: cobra.NoArgs,
	Run: withApp(true, func(cmd *cobra.Command, args []string, application *app.App) error {
		result, err := application.Acquisition.Ingest(cmd.Context(), ingestInput)
		if err != nil {
			return err
		}

		return printJSON(result)
	}),
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "List stored readings, newest first",
	Args:    cobra.NoArgs,
	Run: withApp(false, func(cmd *cobra.Command, args []string, application *app.App) error {
		filter, err := historyFilter(cmd)
		if err != nil {
			return err
		}

		page, err := application.Analytics.History(cmd.Context(), filter)
		if err != nil {
			return err
		}

		if page.Returned == 0 {
			fmt.Println("No readings found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		fmt.Fprintln(w, "ID\tTIME\tHUMIDITY\tTEMPERATURE\tSOIL\tLIGHT")
		fmt.Fprintln(w, "--\t----\t--------\t-----------\t----\t-----")

		for _, reading := range page.Records {
			fmt.Fprintf(w, "%d\t%s\t%.1f%%\t%.1f°C\t%d%% (%s)\t%d (%s)\n",
				reading.ID,
				reading.CreatedAt.Format(time.RFC3339),
				reading.Humidity,
				reading.Temperature,
				reading.Soil,
				classifier.SoilLabel(reading.Soil),
				reading.Light,
				classifier.LightLabel(reading.Light),
			)
		}

		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Printf("\nShowing %d of %d readings\n", page.Returned, page.Total)

		return nil
	}),
}

func historyFilter(cmd *cobra.Command) (storage.HistoryFilter, error) {
	var filter storage.HistoryFilter
	var err error

	if filter.From, err = storage.ParseDate(historyFrom); err != nil {
		return filter, fmt.Errorf("invalid --from: %w", err)
	}

	if filter.To, err = storage.ParseDate(historyTo); err != nil {
		return filter, fmt.Errorf("invalid --to: %w", err)
	}

	if cmd.Flags().Changed("limit") {
		filter.Limit = &historyLimit
	}

	return filter, nil
}

func init() {
	ingestCmd.Flags().Float64Var(&ingestInput.Humidity, "humidity", 0, "Relative humidity in percent")
	ingestCmd.Flags().Float64Var(&ingestInput.Temperature, "temperature", 0, "Temperature in °C")
	ingestCmd.Flags().IntVar(&ingestInput.Soil, "soil", 0, "Soil moisture in percent")
	ingestCmd.Flags().IntVar(&ingestInput.Light, "light", 0, "Raw light sensor value (0-4095, lower is brighter)")
	for _, flag := range []string{"humidity", "temperature", "soil", "light"} {
		ingestCmd.MarkFlagRequired(flag)
	}

	historyCmd.Flags().StringVar(&historyFrom, "from", "", "First day to include (YYYY-MM-DD)")
	historyCmd.Flags().StringVar(&historyTo, "to", "", "Last day to include (YYYY-MM-DD)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", storage.DEFAULT_HISTORY_LIMIT, "Number of readings to show (1-100)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(historyCmd)
}
