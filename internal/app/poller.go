package app

import (
	"context"
	"time"

	"github.com/monorkin/greenhouse-monitor/internal/acquisition"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

const MIN_POLL_INTERVAL = 5 * time.Second

// PollOnce reads the device and stores the snapshot. Snapshots served from
// the store are not stored again.
func (app *App) PollOnce(ctx context.Context) (*acquisition.IngestResult, error) {
	snapshot, err := app.Acquisition.GetSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	if snapshot.Source != acquisition.SourceDevice {
		app.Logger.Warn("Device offline, nothing to record", "last_reading_at", snapshot.RecordedAt)
		return nil, nil
	}

	return app.Acquisition.Ingest(ctx, storage.ReadingInput{
		Humidity:    snapshot.Humidity,
		Temperature: snapshot.Temperature,
		Soil:        snapshot.Soil,
		Light:       snapshot.Light,
	})
}

// Poll calls PollOnce immediately and then every interval until ctx is done.
// Failures are logged and the next tick tries again.
func (app *App) Poll(ctx context.Context, interval time.Duration) {
	interval = max(interval, MIN_POLL_INTERVAL)
	app.Logger.Info("Polling device", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := app.PollOnce(ctx)
		switch {
		case err != nil:
			app.Logger.Error("Poll failed", "error", err)
		case result != nil:
			app.Logger.Debug("Poll stored reading", "outcome", result.Outcome, "id", result.Reading.ID)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
