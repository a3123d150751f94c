// Package storage is the append-only reading history and actuation log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/monorkin/greenhouse-monitor/internal/models"
)

const (
	DEDUP_WINDOW = 30 * time.Second

	DEFAULT_HISTORY_LIMIT = 20
	MAX_HISTORY_LIMIT     = 100
	MAX_ALERTS            = 10
)

var (
	// ErrStoreUnavailable wraps every failure of the underlying datastore.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("no readings stored")
)

type Outcome string

const (
	OutcomeInserted          Outcome = "inserted"
	OutcomeDuplicateRejected Outcome = "duplicate"
)

// ReadingInput carries the caller-supplied values of a new reading.
type ReadingInput struct {
	Humidity    float64 `json:"humidity"`
	Temperature float64 `json:"temperature"`
	Soil        int     `json:"soil"`
	Light       int     `json:"light"`
}

// InsertResult tells an accepted reading apart from a duplicate. For a
// duplicate, Reading is the already stored row.
type InsertResult struct {
	Outcome Outcome
	Reading models.Reading
}

type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger

	// Serializes the duplicate check and the insert.
	insertMutex sync.Mutex
}

type Option func(*Store)

// WithClock replaces time.Now as the source of created_at and of the "now"
// anchoring every trailing window.
func WithClock(now func() time.Time) Option {
	return func(store *Store) {
		store.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(store *Store) {
		store.logger = logger
	}
}

func NewStore(db *gorm.DB, options ...Option) *Store {
	store := &Store{
		db:     db,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(store)
	}

	return store
}

func (store *Store) currentTime() time.Time {
	return store.now().UTC().Truncate(time.Microsecond)
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreUnavailable, action, err)
}

func dedupBucket(t time.Time) int64 {
	return t.Unix() / int64(DEDUP_WINDOW/time.Second)
}

// Insert stores a new reading unless an identical one was stored within the
// dedup window.
func (store *Store) Insert(ctx context.Context, input ReadingInput) (InsertResult, error) {
	store.insertMutex.Lock()
	defer store.insertMutex.Unlock()

	var result InsertResult

	err := store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := store.currentTime()

		existing, err := findDuplicate(tx, input, now)
		if err != nil {
			return err
		}
		if existing != nil {
			result = InsertResult{Outcome: OutcomeDuplicateRejected, Reading: *existing}
			return nil
		}

		var latest models.Reading
		err = tx.Order("created_at desc, id desc").Limit(1).Find(&latest).Error
		if err != nil {
			return err
		}

		// created_at must strictly increase with id.
		createdAt := now
		if latest.ID != 0 && !createdAt.After(latest.CreatedAt) {
			createdAt = latest.CreatedAt.Add(time.Microsecond)
		}

		reading := models.Reading{
			Humidity:    input.Humidity,
			Temperature: input.Temperature,
			Soil:        input.Soil,
			Light:       input.Light,
			CreatedAt:   createdAt,
			DedupBucket: dedupBucket(createdAt),
		}

		if err := tx.Create(&reading).Error; err != nil {
			return err
		}

		result = InsertResult{Outcome: OutcomeInserted, Reading: reading}
		return nil
	})

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Another writer stored the same values in this bucket.
		return store.rejectAsDuplicate(ctx, input)
	}
	if err != nil {
		return InsertResult{}, unavailable("insert reading", err)
	}

	if result.Outcome == OutcomeDuplicateRejected {
		store.logger.Debug("Duplicate reading rejected", "existing_id", result.Reading.ID)
	} else {
		store.logger.Debug("Reading inserted", "id", result.Reading.ID, "created_at", result.Reading.CreatedAt)
	}

	return result, nil
}

func (store *Store) rejectAsDuplicate(ctx context.Context, input ReadingInput) (InsertResult, error) {
	var existing models.Reading

	err := store.db.WithContext(ctx).
		Where("humidity = ? AND temperature = ? AND soil = ? AND light = ?",
			input.Humidity, input.Temperature, input.Soil, input.Light).
		Order("created_at desc, id desc").
		First(&existing).Error
	if err != nil {
		return InsertResult{}, unavailable("look up conflicting reading", err)
	}

	return InsertResult{Outcome: OutcomeDuplicateRejected, Reading: existing}, nil
}

func findDuplicate(tx *gorm.DB, input ReadingInput, now time.Time) (*models.Reading, error) {
	var readings []models.Reading

	err := tx.
		Where("humidity = ? AND temperature = ? AND soil = ? AND light = ?",
			input.Humidity, input.Temperature, input.Soil, input.Light).
		Where("created_at > ?", now.Add(-DEDUP_WINDOW)).
		Order("created_at desc, id desc").
		Limit(1).
		Find(&readings).Error
	if err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		return nil, nil
	}

	return &readings[0], nil
}

func (store *Store) Latest(ctx context.Context) (*models.Reading, error) {
	var reading models.Reading

	err := store.db.WithContext(ctx).Order("created_at desc, id desc").First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("fetch latest reading", err)
	}

	return &reading, nil
}

func (store *Store) AppendActuation(ctx context.Context, entry *models.ActuationLogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = store.currentTime()
	}

	if err := store.db.WithContext(ctx).Create(entry).Error; err != nil {
		return unavailable("append actuation log entry", err)
	}

	return nil
}

// RecentActuations returns the newest control log entries first.
func (store *Store) RecentActuations(ctx context.Context, limit int) ([]models.ActuationLogEntry, error) {
	entries := []models.ActuationLogEntry{}

	err := store.db.WithContext(ctx).
		Order("timestamp desc, id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, unavailable("fetch control log", err)
	}

	return entries, nil
}
