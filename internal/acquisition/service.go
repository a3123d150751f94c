// Package acquisition answers snapshot, control and ingest requests by
// combining the device gateway with the reading store.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/monorkin/greenhouse-monitor/esp32/api"
	"github.com/monorkin/greenhouse-monitor/internal/classifier"
	"github.com/monorkin/greenhouse-monitor/internal/models"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

const RECENT_ACTUATIONS = 5

var (
	ErrDeviceUnreachable = errors.New("device unreachable")
	// ErrNoDataAvailable means the device is unreachable and nothing has
	// been stored yet.
	ErrNoDataAvailable = errors.New("no sensor data available")
	ErrInvalidCommand  = errors.New("invalid control command")
)

type Gateway interface {
	FetchSnapshot(ctx context.Context) (*api.Snapshot, error)
	SendCommand(ctx context.Context, relay api.Relay, state api.RelayState) (string, error)
	Ping(ctx context.Context) bool
}

type Store interface {
	Insert(ctx context.Context, input storage.ReadingInput) (storage.InsertResult, error)
	Latest(ctx context.Context) (*models.Reading, error)
	AppendActuation(ctx context.Context, entry *models.ActuationLogEntry) error
	RecentActuations(ctx context.Context, limit int) ([]models.ActuationLogEntry, error)
}

// Publisher receives newly stored readings and successful actuations.
type Publisher interface {
	PublishReading(ctx context.Context, reading models.Reading) error
	PublishActuation(ctx context.Context, entry models.ActuationLogEntry) error
}

type Source string

const (
	SourceDevice Source = "device"
	SourceStore  Source = "store"
)

type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
)

type Snapshot struct {
	Humidity     float64             `json:"humidity"`
	Temperature  float64             `json:"temperature"`
	Soil         int                 `json:"soil"`
	SoilLabel    string              `json:"soil_label"`
	Light        int                 `json:"light"`
	Source       Source              `json:"source"`
	DeviceStatus DeviceStatus        `json:"device_status"`
	RecordedAt   time.Time           `json:"recorded_at"`
	Analysis     classifier.Analysis `json:"analysis"`
}

type IngestResult struct {
	Outcome  storage.Outcome     `json:"outcome"`
	Reading  models.Reading      `json:"reading"`
	Analysis classifier.Analysis `json:"analysis"`
}

func (result *IngestResult) Duplicate() bool {
	return result.Outcome == storage.OutcomeDuplicateRejected
}

type SystemStatus struct {
	DeviceStatus     DeviceStatus               `json:"device_status"`
	LastReadingAt    *time.Time                 `json:"last_reading_at"`
	RecentActuations []models.ActuationLogEntry `json:"recent_actuations"`
	// The device does not report relay states.
	Relays    map[string]string `json:"relays"`
	CheckedAt time.Time         `json:"checked_at"`
}

type Service struct {
	gateway   Gateway
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

type Option func(*Service)

func WithPublisher(publisher Publisher) Option {
	return func(service *Service) {
		service.publisher = publisher
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(service *Service) {
		service.logger = logger
	}
}

func NewService(gateway Gateway, store Store, options ...Option) *Service {
	service := &Service{
		gateway: gateway,
		store:   store,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(service)
	}

	return service
}

// GetSnapshot returns the current readings from the device or, when the
// device cannot be read, the latest stored reading.
func (service *Service) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	deviceSnapshot, err := service.gateway.FetchSnapshot(ctx)
	if err == nil {
		return snapshotFromDevice(deviceSnapshot), nil
	}

	service.logger.Warn("Device unreachable, falling back to stored reading", "error", err)

	reading, err := service.store.Latest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoDataAvailable
	}
	if err != nil {
		return nil, err
	}

	return snapshotFromReading(reading), nil
}

func snapshotFromDevice(deviceSnapshot *api.Snapshot) *Snapshot {
	humidity := HumidityRange.Clamp(deviceSnapshot.Humidity)
	temperature := TemperatureRange.Clamp(deviceSnapshot.Temperature)
	soil := int(SoilRange.Clamp(float64(deviceSnapshot.Soil.Value)))
	light := int(LightRange.Clamp(float64(deviceSnapshot.Light)))

	soilLabel := deviceSnapshot.Soil.Label
	if !deviceSnapshot.Soil.HasLabel {
		soilLabel = classifier.SoilLabel(soil)
	}

	return &Snapshot{
		Humidity:     humidity,
		Temperature:  temperature,
		Soil:         soil,
		SoilLabel:    soilLabel,
		Light:        light,
		Source:       SourceDevice,
		DeviceStatus: DeviceOnline,
		RecordedAt:   deviceSnapshot.FetchedAt,
		Analysis:     classifier.Analyze(humidity, temperature, soil, light),
	}
}

func snapshotFromReading(reading *models.Reading) *Snapshot {
	return &Snapshot{
		Humidity:     reading.Humidity,
		Temperature:  reading.Temperature,
		Soil:         reading.Soil,
		SoilLabel:    classifier.SoilLabel(reading.Soil),
		Light:        reading.Light,
		Source:       SourceStore,
		DeviceStatus: DeviceOffline,
		RecordedAt:   reading.CreatedAt,
		Analysis:     classifier.Analyze(reading.Humidity, reading.Temperature, reading.Soil, reading.Light),
	}
}

// SendControl switches a relay and logs the action. When the device acted but
// the log entry could not be written, the acknowledgement is returned along
// with the store error.
func (service *Service) SendControl(ctx context.Context, relay api.Relay, state api.RelayState) (string, error) {
	if !relay.Valid() {
		return "", fmt.Errorf("%w: relay must be 1, 2, or 3, got %d", ErrInvalidCommand, int(relay))
	}
	if !state.Valid() {
		return "", fmt.Errorf("%w: state must be \"on\" or \"off\", got %q", ErrInvalidCommand, string(state))
	}

	ack, err := service.gateway.SendCommand(ctx, relay, state)
	if err != nil {
		service.logger.Error("Control command failed", "relay", relay.String(), "state", state, "error", err)
		return "", fmt.Errorf("%w: %w", ErrDeviceUnreachable, err)
	}

	entry := models.ActuationLogEntry{
		Relay:    int(relay),
		State:    string(state),
		Response: ack,
	}

	if err := service.store.AppendActuation(ctx, &entry); err != nil {
		return ack, err
	}

	service.logger.Info("Relay switched", "relay", relay.String(), "state", state)

	if service.publisher != nil {
		if err := service.publisher.PublishActuation(ctx, entry); err != nil {
			service.logger.Warn("Failed to publish actuation", "error", err)
		}
	}

	return ack, nil
}

// Ingest validates and stores a reading submitted by the device or any other
// producer.
func (service *Service) Ingest(ctx context.Context, input storage.ReadingInput) (*IngestResult, error) {
	if err := Validate(input); err != nil {
		service.logger.Debug("Rejected invalid reading", "error", err)
		return nil, err
	}

	inserted, err := service.store.Insert(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{
		Outcome:  inserted.Outcome,
		Reading:  inserted.Reading,
		Analysis: classifier.Analyze(input.Humidity, input.Temperature, input.Soil, input.Light),
	}

	if result.Duplicate() {
		service.logger.Info("Duplicate reading rejected", "existing_id", inserted.Reading.ID)
		return result, nil
	}

	service.logger.Info("Reading stored", "id", inserted.Reading.ID)

	if service.publisher != nil {
		if err := service.publisher.PublishReading(ctx, inserted.Reading); err != nil {
			service.logger.Warn("Failed to publish reading", "id", inserted.Reading.ID, "error", err)
		}
	}

	return result, nil
}

// Status reports device reachability together with what the store knows
// about the latest activity.
func (service *Service) Status(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{
		DeviceStatus: DeviceOffline,
		Relays: map[string]string{
			api.RelayPump.String():  "unknown",
			api.RelayLight.String(): "unknown",
			api.RelayFan.String():   "unknown",
		},
		CheckedAt: time.Now().UTC(),
	}

	if service.gateway.Ping(ctx) {
		status.DeviceStatus = DeviceOnline
	}

	latest, err := service.store.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		status.LastReadingAt = &latest.CreatedAt
	}

	status.RecentActuations, err = service.store.RecentActuations(ctx, RECENT_ACTUATIONS)
	if err != nil {
		return nil, err
	}

	return status, nil
}
