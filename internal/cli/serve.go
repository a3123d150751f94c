package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/monorkin/greenhouse-monitor/internal/app"
	"github.com/monorkin/greenhouse-monitor/internal/httpapi"
)

var (
	pollInterval time.Duration
	httpAddr     string
	servePoll    bool
	dbusInterval time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Record device readings at a fixed interval",
	Args:  cobra.NoArgs,
	Run: withApp(true, func(cmd *cobra.Command, args []string, application *app.App) error {
		application.Poll(cmd.Context(), resolvePollInterval(cmd, application))
		return nil
	}),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API",
	Long: `Serve the JSON API:

  GET  /api/sensors     current snapshot
  POST /api/control     switch a relay ({"relay": 1, "state": "on"})
  GET  /api/readings    store a reading (query parameters, used by the device)
  POST /api/readings    store a reading (JSON body)
  GET  /api/history     stored readings (?from=YYYY-MM-DD&to=YYYY-MM-DD&limit=20)
  GET  /api/analytics   averages, trends, alerts and totals
  GET  /api/status      device reachability and recent actuations`,
	Args: cobra.NoArgs,
	Run: withApp(true, func(cmd *cobra.Command, args []string, application *app.App) error {
		addr := httpAddr
		if addr == "" {
			addr = application.Settings.HTTPAddr
		}

		router := httpapi.NewRouter(httpapi.Config{
			Acquisition:    application.Acquisition,
			Analytics:      application.Analytics,
			Logger:         application.Logger,
			AllowedOrigins: application.Settings.CORSOrigins,
		})

		group, ctx := errgroup.WithContext(cmd.Context())

		group.Go(func() error {
			return httpapi.Serve(ctx, addr, router, application.Logger)
		})

		if servePoll {
			interval := resolvePollInterval(cmd, application)
			group.Go(func() error {
				application.Poll(ctx, interval)
				return nil
			})
		}

		return group.Wait()
	}),
}

var dbusCmd = &cobra.Command{
	Use:   "dbus",
	Short: "Export snapshots and relay control on the session bus",
	Args:  cobra.NoArgs,
	Run: withApp(true, func(cmd *cobra.Command, args []string, application *app.App) error {
		service, err := app.NewDBusService(application)
		if err != nil {
			return err
		}
		defer service.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		service.StartPeriodicUpdates(ctx, dbusInterval)
		logger.Info("DBus service started")

		<-ctx.Done()
		return nil
	}),
}

func resolvePollInterval(cmd *cobra.Command, application *app.App) time.Duration {
	if cmd.Flags().Changed("interval") {
		return pollInterval
	}

	return application.Settings.PollInterval()
}

func init() {
	pollCmd.Flags().DurationVar(&pollInterval, "interval", time.Minute, "Time between device reads")

	serveCmd.Flags().StringVar(&httpAddr, "addr", "", "Listen address (default from settings)")
	serveCmd.Flags().BoolVar(&servePoll, "poll", false, "Also record device readings in the background")
	serveCmd.Flags().DurationVar(&pollInterval, "interval", time.Minute, "Time between device reads with --poll")

	dbusCmd.Flags().DurationVar(&dbusInterval, "interval", app.DBUS_UPDATE_INTERVAL, "Time between SnapshotUpdated signals")

	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dbusCmd)
}
