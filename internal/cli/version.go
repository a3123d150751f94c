package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monorkin/greenhouse-monitor/internal/database"
	"github.com/monorkin/greenhouse-monitor/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and schema version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("greenhouse-monitor %s (schema %d)\n", version.GetVersion(), database.LatestSchemaVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
