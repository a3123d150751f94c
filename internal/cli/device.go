package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/app"
)

var saveDiscovered bool

var sensorsCmd = &cobra.Command{
	Use:     "sensors",
	Aliases: []string{"snapshot"},
	Short:   "Show the current sensor readings",
	Long: `Read all four sensors from the device. When the device cannot be reached the
latest stored reading is shown instead, marked with source "store".`,
	Args: cobra.NoArgs,
	Run: withApp(false, func(cmd *cobra.Command, args []string, application *app.App) error {
		snapshot, err := application.Acquisition.GetSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(snapshot)
	}),
}

var controlCmd = &cobra.Command{
	Use:   "control <relay> <on|off>",
	Short: "Switch a relay on the device",
	Long: `Switch the pump (1), light (2) or fan (3) relay and print the device's response.

Examples:
  greenhouse-monitor control pump on
  greenhouse-monitor control 3 off`,
	Args: cobra.ExactArgs(2),
	Run: withApp(true, func(cmd *cobra.Command, args []string, application *app.App) error {
		relay, err := parseRelay(args[0])
		if err != nil {
			return err
		}

		ack, err := application.Acquisition.SendControl(cmd.Context(), relay, api.RelayState(strings.ToLower(args[1])))
		if err != nil {
			return err
		}

		fmt.Println(ack)
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device reachability and recent activity",
	Args:  cobra.NoArgs,
	Run: withApp(false, func(cmd *cobra.Command, args []string, application *app.App) error {
		status, err := application.Acquisition.Status(cmd.Context())
		if err != nil {
			return err
		}

		return printJSON(struct {
			DeviceHost string `json:"device_host"`
			*acquisition.SystemStatus
		}{application.Device.Host(), status})
	}),
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find the device on the local network over mDNS",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := loadSettings()

		device, err := api.Discover(cmd.Context(), settings.DiscoveryPrefix, logger)
		if err != nil {
			exitWithError(err)
		}

		fmt.Printf("%s\t%s\n", device.Hostname, device.Host())

		if saveDiscovered {
			settings.DeviceHost = device.Host()
			if err := settings.Save(); err != nil {
				exitWithError(fmt.Errorf("failed to save settings: %w", err))
			}
			logger.Info("Saved device host", "host", settings.DeviceHost)
		}
	},
}

// parseRelay accepts a relay number or its name.
func parseRelay(value string) (api.Relay, error) {
	if number, err := strconv.Atoi(value); err == nil {
		return api.Relay(number), nil
	}

	for _, relay := range []api.Relay{api.RelayPump, api.RelayLight, api.RelayFan} {
		if strings.EqualFold(value, relay.String()) {
			return relay, nil
		}
	}

	return 0, fmt.Errorf("unknown relay %q, expected 1-3, pump, light or fan", value)
}

func init() {
	discoverCmd.Flags().BoolVar(&saveDiscovered, "save", false, "Store the discovered host in the settings file")

	rootCmd.AddCommand(sensorsCmd)
	rootCmd.AddCommand(controlCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discoverCmd)
}
