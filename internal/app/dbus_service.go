package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/analytics"
)

const (
	dbusName      = "io.stanko.GreenhouseMonitor"
	dbusPath      = "/io/stanko/GreenhouseMonitor"
	dbusInterface = "io.stanko.GreenhouseMonitor"

	DBUS_UPDATE_INTERVAL = 30 * time.Second
	dbusCallTimeout      = 10 * time.Second
)

// DBusService exposes snapshots, summaries and relay control on the session
// bus.
type DBusService struct {
	app  *App
	conn *dbus.Conn
}

func NewDBusService(app *App) (*DBusService, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	service := &DBusService{
		app:  app,
		conn: conn,
	}

	err = conn.Export(service, dbus.ObjectPath(dbusPath), dbusInterface)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export service: %w", err)
	}

	node := &introspect.Node{
		Name: dbusPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: dbusInterface,
				Methods: []introspect.Method{
					{
						Name: "GetSnapshot",
						Args: []introspect.Arg{
							{Name: "snapshot", Direction: "out", Type: "a{sv}"},
						},
					},
					{
						Name: "GetSummary",
						Args: []introspect.Arg{
							{Name: "summary", Direction: "out", Type: "a{sv}"},
						},
					},
					{
						Name: "Control",
						Args: []introspect.Arg{
							{Name: "relay", Direction: "in", Type: "i"},
							{Name: "state", Direction: "in", Type: "s"},
							{Name: "response", Direction: "out", Type: "s"},
						},
					},
				},
				Signals: []introspect.Signal{
					{
						Name: "SnapshotUpdated",
						Args: []introspect.Arg{
							{Name: "snapshot", Type: "a{sv}"},
						},
					},
				},
			},
		},
	}

	err = conn.Export(introspect.NewIntrospectable(node), dbus.ObjectPath(dbusPath), "org.freedesktop.DBus.Introspectable")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to request bus name: %w", err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s already taken", dbusName)
	}

	return service, nil
}

func (s *DBusService) GetSnapshot() (map[string]dbus.Variant, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbusCallTimeout)
	defer cancel()

	snapshot, err := s.app.Acquisition.GetSnapshot(ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}

	return snapshotVariant(snapshot), nil
}

func (s *DBusService) GetSummary() (map[string]dbus.Variant, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbusCallTimeout)
	defer cancel()

	summary, err := s.app.Analytics.Summary(ctx)
	if err != nil {
		return nil, dbus.MakeFailedError(err)
	}

	return summaryVariant(summary), nil
}

func (s *DBusService) Control(relay int32, state string) (string, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbusCallTimeout)
	defer cancel()

	ack, err := s.app.Acquisition.SendControl(ctx, api.Relay(relay), api.RelayState(state))
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}

	return ack, nil
}

func snapshotVariant(snapshot *acquisition.Snapshot) map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"humidity":      dbus.MakeVariant(snapshot.Humidity),
		"temperature":   dbus.MakeVariant(snapshot.Temperature),
		"soil":          dbus.MakeVariant(int32(snapshot.Soil)),
		"soil_label":    dbus.MakeVariant(snapshot.SoilLabel),
		"light":         dbus.MakeVariant(int32(snapshot.Light)),
		"source":        dbus.MakeVariant(string(snapshot.Source)),
		"device_status": dbus.MakeVariant(string(snapshot.DeviceStatus)),
		"timestamp":     dbus.MakeVariant(snapshot.RecordedAt.Unix()),
	}
}

func summaryVariant(summary analytics.Summary) map[string]dbus.Variant {
	variant := map[string]dbus.Variant{
		"avg_humidity":    dbus.MakeVariant(summary.Averages.AvgHumidity),
		"avg_temperature": dbus.MakeVariant(summary.Averages.AvgTemperature),
		"avg_soil":        dbus.MakeVariant(summary.Averages.AvgSoil),
		"avg_light":       dbus.MakeVariant(summary.Averages.AvgLight),
		"total_readings":  dbus.MakeVariant(summary.Averages.Count),
	}

	if summary.Latest != nil {
		variant["latest_timestamp"] = dbus.MakeVariant(summary.Latest.CreatedAt.Unix())
		variant["light_label"] = dbus.MakeVariant(summary.LightLabel)
	}

	return variant
}

func (s *DBusService) EmitSnapshotUpdated(ctx context.Context) error {
	snapshot, err := s.app.Acquisition.GetSnapshot(ctx)
	if errors.Is(err, acquisition.ErrNoDataAvailable) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.conn.Emit(dbus.ObjectPath(dbusPath), dbusInterface+".SnapshotUpdated", snapshotVariant(snapshot))
}

// StartPeriodicUpdates emits SnapshotUpdated every interval until ctx is done.
func (s *DBusService) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.EmitSnapshotUpdated(ctx); err != nil {
					s.app.Logger.Error("Failed to emit snapshot update", "error", err)
				}
			}
		}
	}()
}

func (s *DBusService) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
