package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorkin/greenhouse-monitor/internal/database"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func newTestService(t *testing.T) (*Service, *storage.Store, *clock) {
	t.Helper()

	db, err := database.SetupDatabase(filepath.Join(t.TempDir(), "greenhouse.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	c := &clock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	store := storage.NewStore(db, storage.WithClock(c.Now))

	return NewService(store), store, c
}

func insert(t *testing.T, store *storage.Store, humidity, temperature float64, soil, light int) {
	t.Helper()

	_, err := store.Insert(context.Background(), storage.ReadingInput{
		Humidity:    humidity,
		Temperature: temperature,
		Soil:        soil,
		Light:       light,
	})
	require.NoError(t, err)
}

func TestSummaryWithoutReadings(t *testing.T) {
	service, _, _ := newTestService(t)

	summary, err := service.Summary(context.Background())
	require.NoError(t, err)

	assert.Nil(t, summary.Latest)
	assert.Equal(t, int64(0), summary.Averages.Count)
}

func TestSummary(t *testing.T) {
	service, store, c := newTestService(t)

	c.now = c.now.Add(-30 * time.Hour)
	insert(t, store, 10, 10, 10, 10)
	c.now = c.now.Add(28 * time.Hour)
	insert(t, store, 40, 20, 40, 1000)
	c.now = c.now.Add(time.Hour)
	insert(t, store, 60, 30, 60, 1600)

	summary, err := service.Summary(context.Background())
	require.NoError(t, err)

	require.NotNil(t, summary.Latest)
	assert.Equal(t, 1600, summary.Latest.Light)
	assert.NotEmpty(t, summary.LightLabel)
	assert.Equal(t, int64(2), summary.Averages.Count)
	assert.InDelta(t, 50, summary.Averages.AvgHumidity, 0.001)
	assert.InDelta(t, 1300, summary.Averages.AvgLight, 0.001)
}

func TestAlertsAreClassified(t *testing.T) {
	service, store, c := newTestService(t)

	insert(t, store, 50, 25, 50, 1500)
	c.now = c.now.Add(time.Minute)
	insert(t, store, 90, 25, 50, 1500)
	c.now = c.now.Add(time.Minute)
	insert(t, store, 50, 25, 10, 1500)

	alerts, err := service.Alerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, 10, alerts[0].Soil)
	assert.Equal(t, "very_dry", alerts[0].Analysis.Soil.Status)
	assert.Equal(t, 90.0, alerts[1].Humidity)
	assert.Equal(t, "high", alerts[1].Analysis.Humidity.Status)
}

func TestReport(t *testing.T) {
	service, store, c := newTestService(t)

	c.now = c.now.Add(-2 * 24 * time.Hour)
	insert(t, store, 50, 25, 50, 1500)
	c.now = c.now.Add(2 * 24 * time.Hour)
	insert(t, store, 50, 40, 50, 1500)

	report, err := service.Report(context.Background())
	require.NoError(t, err)

	require.NotNil(t, report.Summary.Latest)
	assert.Equal(t, int64(1), report.Summary.Averages.Count)
	assert.Len(t, report.Trends, 2)
	assert.Len(t, report.Alerts, 1)
	assert.Equal(t, int64(2), report.Performance.TotalReadings)
	require.NotNil(t, report.Performance.FirstReading)
	require.NotNil(t, report.Performance.LastReading)
	assert.True(t, report.Performance.FirstReading.Before(*report.Performance.LastReading))
}

func TestReportFailsWhenStoreIsUnavailable(t *testing.T) {
	db, err := database.SetupDatabase(filepath.Join(t.TempDir(), "greenhouse.sqlite"))
	require.NoError(t, err)
	service := NewService(storage.NewStore(db))
	require.NoError(t, database.Close(db))

	_, err = service.Report(context.Background())
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestHistory(t *testing.T) {
	service, store, c := newTestService(t)

	for i := 0; i < 30; i++ {
		insert(t, store, 50, 25, 50, i)
		c.now = c.now.Add(time.Minute)
	}

	page, err := service.History(context.Background(), storage.HistoryFilter{})
	require.NoError(t, err)

	assert.Equal(t, int64(30), page.Total)
	assert.Equal(t, storage.DEFAULT_HISTORY_LIMIT, page.Returned)
	assert.Equal(t, storage.DEFAULT_HISTORY_LIMIT, page.Limit)
	assert.Equal(t, 29, page.Records[0].Light)
}
