package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/monorkin/greenhouse-monitor/internal/app"
	"github.com/monorkin/greenhouse-monitor/internal/config"
)

var (
	verbose    bool
	dbPath     string
	deviceHost string
	logger     *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "greenhouse-monitor",
	Short: "Greenhouse sensor monitor",
	Long: `Collects humidity, temperature, soil moisture and light readings from an
ESP32 greenhouse controller, stores them, classifies them and switches the
pump, light and fan relays.

Settings are read from settings.json in the config directory, an optional .env
file and GREENHOUSE_* environment variables.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so long-running commands can shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the reading database (default: data directory)")
	rootCmd.PersistentFlags().StringVar(&deviceHost, "device", "", "Device address, overrides the configured host")
}

// setupLogger configures the logger based on the verbose flag
func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)
}

func loadSettings() *config.Settings {
	if err := config.LoadDotEnv(); err != nil {
		logger.Warn("Failed to load .env file", "error", err)
	}

	isNew, settings := config.LoadOrInitializeSettingsFromDefaultLocation()
	if isNew {
		logger.Debug("Created new settings file", "path", config.DefaultSettingsPath())
		if err := settings.Save(); err != nil {
			logger.Error("Failed to save new settings", "error", err)
		}
	} else {
		logger.Debug("Loaded existing settings")
	}

	if deviceHost != "" {
		settings.DeviceHost = deviceHost
	}

	return settings
}

func openApp(publish bool) (*app.App, error) {
	return app.New(app.Options{
		Settings: loadSettings(),
		Logger:   logger,
		DBPath:   dbPath,
		Publish:  publish,
	})
}

// withApp opens the application for the duration of run and exits with a
// non-zero status when run fails.
func withApp(publish bool, run func(cmd *cobra.Command, args []string, application *app.App) error) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		application, err := openApp(publish)
		if err != nil {
			exitWithError(err)
		}

		err = run(cmd, args, application)
		application.Close()

		if err != nil {
			exitWithError(err)
		}
	}
}

func exitWithError(err error) {
	logger.Debug("Command failed", "error", err)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(value any) error {
	output, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}

	fmt.Println(string(output))

	return nil
}
