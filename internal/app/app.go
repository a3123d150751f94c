// Package app wires settings, storage, the device gateway and the services
// into one application shared by the CLI, HTTP and DBus front ends.
package app

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/analytics"
	"github.com/monorkin/greenhouse-monitor/internal/config"
	"github.com/monorkin/greenhouse-monitor/internal/database"
	"github.com/monorkin/greenhouse-monitor/internal/mqtt"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

type Options struct {
	Settings *config.Settings
	Logger   *slog.Logger
	// DBPath defaults to config.DBPath().
	DBPath string
	// Publish connects to the configured MQTT broker, if any.
	Publish bool
}

type App struct {
	Settings    *config.Settings
	Logger      *slog.Logger
	Store       *storage.Store
	Device      *Gateway
	Acquisition *acquisition.Service
	Analytics   *analytics.Service

	db        *gorm.DB
	publisher *mqtt.Publisher
}

func New(options Options) (*App, error) {
	settings := options.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbPath := options.DBPath
	if dbPath == "" {
		dbPath = config.DBPath()
	}

	db, err := database.SetupDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", dbPath, err)
	}
	logger.Debug("Database ready", "path", dbPath)

	app := &App{
		Settings: settings,
		Logger:   logger,
		Store:    storage.NewStore(db, storage.WithLogger(logger)),
		Device:   NewGateway(settings, logger),
		db:       db,
	}

	acquisitionOptions := []acquisition.Option{acquisition.WithLogger(logger)}

	if options.Publish && settings.MQTTBroker != "" {
		app.publisher, err = mqtt.Connect(mqtt.ClientConfig{
			Broker:      settings.MQTTBroker,
			Username:    settings.MQTTUsername,
			Password:    settings.MQTTPassword,
			TopicPrefix: settings.MQTTTopicPrefix,
			Logger:      logger,
		})
		if err != nil {
			// Events are optional; the app keeps working without a broker.
			logger.Warn("MQTT publishing disabled", "broker", settings.MQTTBroker, "error", err)
		} else {
			acquisitionOptions = append(acquisitionOptions, acquisition.WithPublisher(app.publisher))
		}
	}

	app.Acquisition = acquisition.NewService(app.Device, app.Store, acquisitionOptions...)
	app.Analytics = analytics.NewService(app.Store, analytics.WithLogger(logger))

	return app, nil
}

func (app *App) Close() error {
	if app.publisher != nil {
		app.publisher.Close()
	}

	return database.Close(app.db)
}
