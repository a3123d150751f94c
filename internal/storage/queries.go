package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/monorkin/greenhouse-monitor/internal/models"
)

// DATE_LAYOUT is the calendar date format accepted for history bounds.
const DATE_LAYOUT = "2006-01-02"

// ParseDate reads a DATE_LAYOUT date as a UTC day. An empty value is no bound.
func ParseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	date, err := time.ParseInLocation(DATE_LAYOUT, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}

	return &date, nil
}

// HistoryFilter narrows a history query. From and To are calendar dates; To
// includes its whole day. A nil Limit means DEFAULT_HISTORY_LIMIT.
type HistoryFilter struct {
	From  *time.Time
	To    *time.Time
	Limit *int
}

// EffectiveLimit is the limit clamped to [1, MAX_HISTORY_LIMIT].
func (filter HistoryFilter) EffectiveLimit() int {
	if filter.Limit == nil {
		return DEFAULT_HISTORY_LIMIT
	}

	return min(MAX_HISTORY_LIMIT, max(1, *filter.Limit))
}

func (filter HistoryFilter) apply(query *gorm.DB) *gorm.DB {
	if filter.From != nil {
		query = query.Where("created_at >= ?", startOfDay(*filter.From))
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", startOfDay(*filter.To).AddDate(0, 0, 1))
	}

	return query
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

type Aggregate struct {
	AvgHumidity    float64 `json:"avg_humidity"`
	AvgTemperature float64 `json:"avg_temperature"`
	AvgSoil        float64 `json:"avg_soil"`
	AvgLight       float64 `json:"avg_light"`
	Count          int64   `json:"total_readings"`
}

type DailyAverage struct {
	Date           string  `json:"date"`
	AvgHumidity    float64 `json:"avg_humidity"`
	AvgTemperature float64 `json:"avg_temperature"`
	AvgSoil        float64 `json:"avg_soil"`
	AvgLight       float64 `json:"avg_light"`
}

// Thresholds are the limits outside of which a reading raises an alert.
type Thresholds struct {
	HumidityMin    float64
	HumidityMax    float64
	TemperatureMin float64
	TemperatureMax float64
	SoilMin        int
	SoilMax        int
}

var DefaultThresholds = Thresholds{
	HumidityMin:    30,
	HumidityMax:    80,
	TemperatureMin: 15,
	TemperatureMax: 35,
	SoilMin:        20,
	SoilMax:        80,
}

type Performance struct {
	TotalReadings int64      `json:"total_readings"`
	FirstReading  *time.Time `json:"first_reading"`
	LastReading   *time.Time `json:"last_reading"`
}

const averagesSelect = "COALESCE(AVG(humidity), 0) AS avg_humidity, " +
	"COALESCE(AVG(temperature), 0) AS avg_temperature, " +
	"COALESCE(AVG(soil), 0) AS avg_soil, " +
	"COALESCE(AVG(light), 0) AS avg_light"

// History returns readings newest first, ties broken by id.
func (store *Store) History(ctx context.Context, filter HistoryFilter) ([]models.Reading, error) {
	readings := []models.Reading{}

	err := filter.apply(store.db.WithContext(ctx).Model(&models.Reading{})).
		Order("created_at desc, id desc").
		Limit(filter.EffectiveLimit()).
		Find(&readings).Error
	if err != nil {
		return nil, unavailable("fetch history", err)
	}

	return readings, nil
}

func (store *Store) CountInRange(ctx context.Context, filter HistoryFilter) (int64, error) {
	var count int64

	err := filter.apply(store.db.WithContext(ctx).Model(&models.Reading{})).Count(&count).Error
	if err != nil {
		return 0, unavailable("count readings", err)
	}

	return count, nil
}

// AggregateLast averages every reading created within the trailing window.
func (store *Store) AggregateLast(ctx context.Context, window time.Duration) (Aggregate, error) {
	var aggregate Aggregate

	err := store.db.WithContext(ctx).
		Model(&models.Reading{}).
		Select(averagesSelect+", COUNT(*) AS count").
		Where("created_at > ?", store.currentTime().Add(-window)).
		Scan(&aggregate).Error
	if err != nil {
		return Aggregate{}, unavailable("aggregate readings", err)
	}

	return aggregate, nil
}

// DailyTrend averages readings per UTC calendar date for today and the
// preceding days-1 dates, newest date first.
func (store *Store) DailyTrend(ctx context.Context, days int) ([]DailyAverage, error) {
	trend := []DailyAverage{}
	if days < 1 {
		return trend, nil
	}

	since := startOfDay(store.currentTime()).AddDate(0, 0, -(days - 1))

	err := store.db.WithContext(ctx).
		Model(&models.Reading{}).
		Select("date(created_at) AS date, "+averagesSelect).
		Where("created_at >= ?", since).
		Group("date(created_at)").
		Order("date desc").
		Scan(&trend).Error
	if err != nil {
		return nil, unavailable("compute daily trend", err)
	}

	return trend, nil
}

// AlertScan returns up to MAX_ALERTS readings from the trailing window that
// breach any threshold, newest first.
func (store *Store) AlertScan(ctx context.Context, window time.Duration, thresholds Thresholds) ([]models.Reading, error) {
	readings := []models.Reading{}

	err := store.db.WithContext(ctx).
		Where("created_at > ?", store.currentTime().Add(-window)).
		Where(
			"(humidity < ? OR humidity > ? OR temperature < ? OR temperature > ? OR soil < ? OR soil > ?)",
			thresholds.HumidityMin, thresholds.HumidityMax,
			thresholds.TemperatureMin, thresholds.TemperatureMax,
			thresholds.SoilMin, thresholds.SoilMax,
		).
		Order("created_at desc, id desc").
		Limit(MAX_ALERTS).
		Find(&readings).Error
	if err != nil {
		return nil, unavailable("scan for alerts", err)
	}

	return readings, nil
}

func (store *Store) Performance(ctx context.Context) (Performance, error) {
	var performance Performance

	db := store.db.WithContext(ctx)

	if err := db.Model(&models.Reading{}).Count(&performance.TotalReadings).Error; err != nil {
		return Performance{}, unavailable("count readings", err)
	}
	if performance.TotalReadings == 0 {
		return performance, nil
	}

	var first models.Reading
	if err := db.Order("created_at asc, id asc").First(&first).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Performance{}, unavailable("fetch first reading", err)
	}

	last, err := store.Latest(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Performance{}, err
	}

	if first.ID != 0 {
		performance.FirstReading = &first.CreatedAt
	}
	if last != nil {
		performance.LastReading = &last.CreatedAt
	}

	return performance, nil
}
