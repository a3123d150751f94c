package acquisition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/classifier"
	"github.com/monorkin/greenhouse-monitor/internal/database"
	"github.com/monorkin/greenhouse-monitor/internal/models"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

type fakeGateway struct {
	snapshot *api.Snapshot
	ack      string
	err      error
	online   bool

	commands []string
}

func (gateway *fakeGateway) FetchSnapshot(ctx context.Context) (*api.Snapshot, error) {
	if gateway.err != nil {
		return nil, gateway.err
	}
	return gateway.snapshot, nil
}

func (gateway *fakeGateway) SendCommand(ctx context.Context, relay api.Relay, state api.RelayState) (string, error) {
	gateway.commands = append(gateway.commands, fmt.Sprintf("%d:%s", relay, state))
	if gateway.err != nil {
		return "", gateway.err
	}
	return gateway.ack, nil
}

func (gateway *fakeGateway) Ping(ctx context.Context) bool {
	return gateway.online
}

type recordingPublisher struct {
	mu         sync.Mutex
	readings   []models.Reading
	actuations []models.ActuationLogEntry
	err        error
}

func (publisher *recordingPublisher) PublishReading(ctx context.Context, reading models.Reading) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.readings = append(publisher.readings, reading)
	return publisher.err
}

func (publisher *recordingPublisher) PublishActuation(ctx context.Context, entry models.ActuationLogEntry) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.actuations = append(publisher.actuations, entry)
	return publisher.err
}

// failingStore answers every call with a datastore failure.
type failingStore struct {
	err error
}

func (store *failingStore) Insert(ctx context.Context, input storage.ReadingInput) (storage.InsertResult, error) {
	return storage.InsertResult{}, store.err
}

func (store *failingStore) Latest(ctx context.Context) (*models.Reading, error) {
	return nil, store.err
}

func (store *failingStore) AppendActuation(ctx context.Context, entry *models.ActuationLogEntry) error {
	return store.err
}

func (store *failingStore) RecentActuations(ctx context.Context, limit int) ([]models.ActuationLogEntry, error) {
	return nil, store.err
}

var storeDown = fmt.Errorf("%w: failed to query readings: disk I/O error", storage.ErrStoreUnavailable)

var unreachable = fmt.Errorf("%w: connection refused", api.ErrUnreachable)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := database.SetupDatabase(filepath.Join(t.TempDir(), "greenhouse.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })

	return storage.NewStore(db)
}

func healthySnapshot() *api.Snapshot {
	return &api.Snapshot{
		Humidity:    56.4,
		Temperature: 23.1,
		Soil:        api.SoilReading{Value: 47, Label: "Optimal", HasLabel: true},
		Light:       1320,
		FetchedAt:   time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	}
}

func TestGetSnapshotFromDevice(t *testing.T) {
	service := NewService(&fakeGateway{snapshot: healthySnapshot()}, newTestStore(t))

	snapshot, err := service.GetSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceDevice, snapshot.Source)
	assert.Equal(t, DeviceOnline, snapshot.DeviceStatus)
	assert.Equal(t, 56.4, snapshot.Humidity)
	assert.Equal(t, 47, snapshot.Soil)
	assert.Equal(t, "Optimal", snapshot.SoilLabel)
	assert.Equal(t, classifier.SeverityGood, snapshot.Analysis.Soil.Severity)
}

func TestGetSnapshotDerivesMissingSoilLabel(t *testing.T) {
	deviceSnapshot := healthySnapshot()
	deviceSnapshot.Soil = api.SoilReading{Value: 10}
	service := NewService(&fakeGateway{snapshot: deviceSnapshot}, newTestStore(t))

	snapshot, err := service.GetSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, classifier.SoilLabel(10), snapshot.SoilLabel)
}

func TestGetSnapshotClampsDeviceValues(t *testing.T) {
	deviceSnapshot := healthySnapshot()
	deviceSnapshot.Humidity = 104
	deviceSnapshot.Light = 5000
	service := NewService(&fakeGateway{snapshot: deviceSnapshot}, newTestStore(t))

	snapshot, err := service.GetSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100.0, snapshot.Humidity)
	assert.Equal(t, 4095, snapshot.Light)
}

func TestGetSnapshotFallsBackToLatestReading(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Insert(context.Background(), storage.ReadingInput{Humidity: 40, Temperature: 20, Soil: 15, Light: 800})
	require.NoError(t, err)

	service := NewService(&fakeGateway{err: unreachable}, store)

	snapshot, err := service.GetSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SourceStore, snapshot.Source)
	assert.Equal(t, DeviceOffline, snapshot.DeviceStatus)
	assert.Equal(t, 40.0, snapshot.Humidity)
	assert.Equal(t, classifier.SoilLabel(15), snapshot.SoilLabel)
	assert.Equal(t, classifier.Soil(15), snapshot.Analysis.Soil)
}

func TestGetSnapshotWithoutDeviceOrData(t *testing.T) {
	service := NewService(&fakeGateway{err: unreachable}, newTestStore(t))

	_, err := service.GetSnapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoDataAvailable)
}

func TestSendControl(t *testing.T) {
	store := newTestStore(t)
	gateway := &fakeGateway{ack: "Relay 1 turned ON"}
	publisher := &recordingPublisher{}
	service := NewService(gateway, store, WithPublisher(publisher))

	ack, err := service.SendControl(context.Background(), api.RelayPump, api.RelayOn)
	require.NoError(t, err)
	assert.Equal(t, "Relay 1 turned ON", ack)

	entries, err := store.RecentActuations(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Relay)
	assert.Equal(t, "on", entries[0].State)
	assert.Equal(t, "Relay 1 turned ON", entries[0].Response)

	require.Len(t, publisher.actuations, 1)
	assert.Equal(t, "on", publisher.actuations[0].State)
}

func TestSendControlRejectsInvalidCommands(t *testing.T) {
	store := newTestStore(t)
	gateway := &fakeGateway{ack: "ok"}
	service := NewService(gateway, store)

	_, err := service.SendControl(context.Background(), api.Relay(4), api.RelayOn)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = service.SendControl(context.Background(), api.RelayFan, api.RelayState("toggle"))
	assert.ErrorIs(t, err, ErrInvalidCommand)

	assert.Empty(t, gateway.commands)

	entries, err := store.RecentActuations(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendControlWhenDeviceUnreachable(t *testing.T) {
	store := newTestStore(t)
	service := NewService(&fakeGateway{err: unreachable}, store)

	_, err := service.SendControl(context.Background(), api.RelayLight, api.RelayOff)
	assert.ErrorIs(t, err, ErrDeviceUnreachable)

	entries, err := store.RecentActuations(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestReportsEveryViolation(t *testing.T) {
	store := newTestStore(t)
	service := NewService(&fakeGateway{}, store)

	_, err := service.Ingest(context.Background(), storage.ReadingInput{Humidity: 150, Temperature: 10, Soil: -5, Light: 5000})

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Len(t, validationErr.Violations, 3)

	fields := []string{}
	for _, violation := range validationErr.Violations {
		fields = append(fields, violation.Field)
	}
	assert.Equal(t, []string{"humidity", "soil", "light"}, fields)

	_, err = store.Latest(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestValidateRejectsNaN(t *testing.T) {
	var validationErr *ValidationError
	err := Validate(storage.ReadingInput{Humidity: math.NaN(), Temperature: 20, Soil: 50, Light: 100})

	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "humidity", validationErr.Violations[0].Field)
}

func TestValidateAcceptsBoundaries(t *testing.T) {
	assert.NoError(t, Validate(storage.ReadingInput{Humidity: 0, Temperature: -40, Soil: 0, Light: 0}))
	assert.NoError(t, Validate(storage.ReadingInput{Humidity: 100, Temperature: 80, Soil: 100, Light: 4095}))
}

func TestIngestStoresAndDeduplicates(t *testing.T) {
	publisher := &recordingPublisher{}
	service := NewService(&fakeGateway{}, newTestStore(t), WithPublisher(publisher))
	input := storage.ReadingInput{Humidity: 55, Temperature: 24.5, Soil: 50, Light: 1200}

	first, err := service.Ingest(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeInserted, first.Outcome)
	assert.Equal(t, classifier.Humidity(55), first.Analysis.Humidity)

	second, err := service.Ingest(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, second.Duplicate())
	assert.Equal(t, first.Reading.ID, second.Reading.ID)

	assert.Len(t, publisher.readings, 1)
}

func TestIngestIgnoresPublisherFailures(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	service := NewService(&fakeGateway{}, newTestStore(t), WithPublisher(publisher))

	result, err := service.Ingest(context.Background(), storage.ReadingInput{Humidity: 55, Temperature: 24.5, Soil: 50, Light: 1200})
	require.NoError(t, err)
	assert.Equal(t, storage.OutcomeInserted, result.Outcome)
}

func TestStatus(t *testing.T) {
	store := newTestStore(t)
	gateway := &fakeGateway{online: true, ack: "Relay 3 turned ON"}
	service := NewService(gateway, store)

	status, err := service.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceOnline, status.DeviceStatus)
	assert.Nil(t, status.LastReadingAt)
	assert.Empty(t, status.RecentActuations)
	assert.Equal(t, "unknown", status.Relays["fan"])

	_, err = service.Ingest(context.Background(), storage.ReadingInput{Humidity: 55, Temperature: 24.5, Soil: 50, Light: 1200})
	require.NoError(t, err)
	_, err = service.SendControl(context.Background(), api.RelayFan, api.RelayOn)
	require.NoError(t, err)

	gateway.online = false
	status, err = service.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceOffline, status.DeviceStatus)
	assert.NotNil(t, status.LastReadingAt)
	assert.Len(t, status.RecentActuations, 1)
}

func TestValidateReportsAllFourFields(t *testing.T) {
	var validationErr *ValidationError
	err := Validate(storage.ReadingInput{Humidity: 150, Temperature: 90, Soil: -5, Light: 5000})

	require.True(t, errors.As(err, &validationErr))
	require.Len(t, validationErr.Violations, 4)

	temperature := validationErr.Violations[1]
	assert.Equal(t, "temperature", temperature.Field)
	assert.Equal(t, 90.0, temperature.Value)
	assert.Equal(t, -40.0, temperature.Min)
	assert.Equal(t, 80.0, temperature.Max)
}

func TestGetSnapshotReportsStoreFailureDuringFallback(t *testing.T) {
	service := NewService(&fakeGateway{err: unreachable}, &failingStore{err: storeDown})

	snapshot, err := service.GetSnapshot(context.Background())
	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrNoDataAvailable)
}

func TestSendControlReturnsAckWhenLogFails(t *testing.T) {
	publisher := &recordingPublisher{}
	gateway := &fakeGateway{ack: "Relay 1 on"}
	service := NewService(gateway, &failingStore{err: storeDown}, WithPublisher(publisher))

	ack, err := service.SendControl(context.Background(), api.RelayPump, api.RelayOn)
	assert.Equal(t, "Relay 1 on", ack)
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrDeviceUnreachable)
	assert.Equal(t, []string{"1:on"}, gateway.commands)
	assert.Empty(t, publisher.actuations)
}
