// Package analytics computes read-only summaries over the stored reading
// history.
package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/monorkin/greenhouse-monitor/internal/classifier"
	"github.com/monorkin/greenhouse-monitor/internal/models"
	"github.com/monorkin/greenhouse-monitor/internal/storage"
)

const (
	SUMMARY_WINDOW = 24 * time.Hour
	ALERT_WINDOW   = time.Hour
	TREND_DAYS     = 7
)

type Store interface {
	Latest(ctx context.Context) (*models.Reading, error)
	History(ctx context.Context, filter storage.HistoryFilter) ([]models.Reading, error)
	CountInRange(ctx context.Context, filter storage.HistoryFilter) (int64, error)
	AggregateLast(ctx context.Context, window time.Duration) (storage.Aggregate, error)
	DailyTrend(ctx context.Context, days int) ([]storage.DailyAverage, error)
	AlertScan(ctx context.Context, window time.Duration, thresholds storage.Thresholds) ([]models.Reading, error)
	Performance(ctx context.Context) (storage.Performance, error)
}

type Summary struct {
	// Latest is nil while nothing has been stored.
	Latest     *models.Reading   `json:"latest"`
	Averages   storage.Aggregate `json:"averages_24h"`
	LightLabel string            `json:"light_label,omitempty"`
}

type Alert struct {
	models.Reading
	Analysis classifier.Analysis `json:"analysis"`
}

type Report struct {
	Summary     Summary                `json:"summary"`
	Trends      []storage.DailyAverage `json:"trends"`
	Alerts      []Alert                `json:"alerts"`
	Performance storage.Performance    `json:"performance"`
}

type HistoryPage struct {
	Records  []models.Reading `json:"records"`
	Total    int64            `json:"total"`
	Returned int              `json:"returned"`
	Limit    int              `json:"limit"`
}

type Service struct {
	store      Store
	thresholds storage.Thresholds
	logger     *slog.Logger
}

type Option func(*Service)

func WithThresholds(thresholds storage.Thresholds) Option {
	return func(service *Service) {
		service.thresholds = thresholds
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(service *Service) {
		service.logger = logger
	}
}

func NewService(store Store, options ...Option) *Service {
	service := &Service{
		store:      store,
		thresholds: storage.DefaultThresholds,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(service)
	}

	return service
}

func (service *Service) Summary(ctx context.Context) (Summary, error) {
	var summary Summary

	latest, err := service.store.Latest(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Summary{}, err
	default:
		summary.Latest = latest
		summary.LightLabel = classifier.LightLabel(latest.Light)
	}

	summary.Averages, err = service.store.AggregateLast(ctx, SUMMARY_WINDOW)
	if err != nil {
		return Summary{}, err
	}

	return summary, nil
}

func (service *Service) Trends(ctx context.Context) ([]storage.DailyAverage, error) {
	return service.store.DailyTrend(ctx, TREND_DAYS)
}

// Alerts returns the threshold breaches of the last hour, each with its
// classification.
func (service *Service) Alerts(ctx context.Context) ([]Alert, error) {
	readings, err := service.store.AlertScan(ctx, ALERT_WINDOW, service.thresholds)
	if err != nil {
		return nil, err
	}

	alerts := make([]Alert, 0, len(readings))
	for _, reading := range readings {
		alerts = append(alerts, Alert{
			Reading:  reading,
			Analysis: classifier.Analyze(reading.Humidity, reading.Temperature, reading.Soil, reading.Light),
		})
	}

	return alerts, nil
}

func (service *Service) Performance(ctx context.Context) (storage.Performance, error) {
	return service.store.Performance(ctx)
}

// Report computes the summary, trends, alerts and performance counters
// concurrently. Any failure fails the whole report.
func (service *Service) Report(ctx context.Context) (*Report, error) {
	report := &Report{}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() (err error) {
		report.Summary, err = service.Summary(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		report.Trends, err = service.Trends(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		report.Alerts, err = service.Alerts(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		report.Performance, err = service.Performance(groupCtx)
		return err
	})

	if err := group.Wait(); err != nil {
		service.logger.Error("Failed to compute analytics", "error", err)
		return nil, err
	}

	return report, nil
}

// History returns one page of readings together with the number of readings
// matching the filter's date range.
func (service *Service) History(ctx context.Context, filter storage.HistoryFilter) (*HistoryPage, error) {
	records, err := service.store.History(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := service.store.CountInRange(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &HistoryPage{
		Records:  records,
		Total:    total,
		Returned: len(records),
		Limit:    filter.EffectiveLimit(),
	}, nil
}
