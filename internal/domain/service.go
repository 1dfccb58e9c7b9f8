// Package domain defines the measurement façade and the views derived from it.
package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/cache"
	"github.com/igorgomez/medidascorporais/internal/observability"
)

// Store captures persistence of the per-user measurement collection.
type Store interface {
	// List returns every measurement of the user ordered by date descending.
	List(ctx context.Context, userID string) ([]Measurement, error)
	// Create writes a new measurement, assigning its id and creation time. When
	// idempotencyKey matches an earlier write for the same user the earlier
	// record is returned with replay set.
	Create(ctx context.Context, userID string, input NewMeasurement, idempotencyKey string) (m Measurement, replay bool, err error)
	// Delete removes the measurement. Unknown ids are not an error.
	Delete(ctx context.Context, userID, measurementID string) error
}

// LegacyStore exposes the device-local array of records saved before sign-in.
type LegacyStore interface {
	LoadLegacy(ctx context.Context) ([]LegacyRecord, error)
	ClearLegacy(ctx context.Context) error
}

// Service orchestrates measurement workflows.
type Service struct {
	store       Store
	legacy      LegacyStore
	lists       *cache.ListCache[[]Measurement]
	invalidator cache.Invalidator
	logger      *zap.Logger
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLegacyStore enables Migrate.
func WithLegacyStore(legacy LegacyStore) Option {
	return func(s *Service) { s.legacy = legacy }
}

// WithListCache serves List from a per-user cache until a mutation invalidates it.
func WithListCache(lists *cache.ListCache[[]Measurement]) Option {
	return func(s *Service) { s.lists = lists }
}

// WithInvalidator adds an external cache to invalidate after mutations.
func WithInvalidator(inv cache.Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		invalidator: cache.NoopInvalidator{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the user's measurements, most recent first.
func (s *Service) List(ctx context.Context, userID string) ([]Measurement, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthenticated
	}
	var generation uint64
	if s.lists != nil {
		if cached, ok := s.lists.Get(userID); ok {
			return cloneMeasurements(cached), nil
		}
		generation = s.lists.Generation(userID)
	}

	items, err := s.store.List(ctx, userID)
	if err != nil {
		s.logger.Error("list measurements", zap.String("user_id", userID), zap.Error(err))
		observability.RecordFailure("list")
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	SortByDateDesc(items)

	if s.lists != nil {
		s.lists.Put(userID, generation, cloneMeasurements(items))
	}
	return items, nil
}

// CreateInput is the payload accepted from callers.
type CreateInput struct {
	Date           time.Time
	Values         Values
	IdempotencyKey string
}

// Create validates and stores a measurement for the user.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*Measurement, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, ErrUnauthenticated
	}
	values := input.Values.Normalize()
	if err := values.Validate(); err != nil {
		return nil, false, err
	}
	if input.Date.IsZero() {
		return nil, false, fmt.Errorf("%w: date is required", ErrInvalidValue)
	}

	m, replay, err := s.store.Create(ctx, userID, NewMeasurement{Date: input.Date.UTC(), Values: values}, input.IdempotencyKey)
	if err != nil {
		s.logger.Error("create measurement", zap.String("user_id", userID), zap.Error(err))
		observability.RecordFailure("create")
		return nil, false, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	m.UserID = userID

	if !replay {
		observability.RecordCreated(m.CreatedAt)
	}
	s.invalidate(ctx, userID)
	return &m, replay, nil
}

// Delete removes a measurement owned by the user.
func (s *Service) Delete(ctx context.Context, userID, measurementID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUnauthenticated
	}
	if strings.TrimSpace(measurementID) == "" {
		return fmt.Errorf("%w: missing measurement id", ErrInvalidValue)
	}
	if err := s.store.Delete(ctx, userID, measurementID); err != nil {
		s.logger.Error("delete measurement", zap.String("user_id", userID), zap.String("measurement_id", measurementID), zap.Error(err))
		observability.RecordFailure("delete")
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	observability.RecordDeleted()
	s.invalidate(ctx, userID)
	return nil
}

// SkippedLegacy is a legacy entry that can never be stored as it is.
type SkippedLegacy struct {
	Index  int          `json:"index"`
	Record LegacyRecord `json:"record"`
	Reason string       `json:"reason"`
}

// MigrationReport summarises one Migrate run.
type MigrationReport struct {
	Migrated int
	Skipped  []SkippedLegacy
}

// Migrate copies the legacy records into the user's collection one at a time
// and clears the local copy once the pass completes. Entries that fail
// validation (empty, unparsable number or date) are skipped and reported so
// they cannot block the rest. A store fault stops the run without rollback and
// keeps the local copy, so the call can be retried; per-entry idempotency keys
// stop a retry from duplicating entries that made it across the first time.
func (s *Service) Migrate(ctx context.Context, userID string) (MigrationReport, error) {
	var report MigrationReport
	if strings.TrimSpace(userID) == "" {
		return report, ErrUnauthenticated
	}
	if s.legacy == nil {
		return report, nil
	}

	records, err := s.legacy.LoadLegacy(ctx)
	if err != nil {
		observability.RecordFailure("migrate")
		return report, fmt.Errorf("%w: %v", ErrMigrateFailed, err)
	}
	if len(records) == 0 {
		return report, nil
	}

	for i, record := range records {
		date, err := ParseDate(record.Date)
		if err == nil {
			key := ""
			if id := strings.TrimSpace(record.ID); id != "" {
				key = "legacy:" + id
			}
			_, _, err = s.Create(ctx, userID, CreateInput{Date: date, Values: record.Values, IdempotencyKey: key})
		}
		switch {
		case err == nil:
			report.Migrated++
		case errors.Is(err, ErrEmptyMeasurement), errors.Is(err, ErrInvalidValue):
			s.logger.Warn("legacy entry skipped", zap.String("user_id", userID), zap.Int("index", i), zap.String("legacy_id", record.ID), zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedLegacy{Index: i, Record: record, Reason: err.Error()})
		default:
			s.logger.Warn("migration stopped", zap.String("user_id", userID), zap.Int("migrated", report.Migrated), zap.Int("total", len(records)), zap.Error(err))
			return report, fmt.Errorf("%w: entry %d: %v", ErrMigrateFailed, i, err)
		}
	}

	if err := s.legacy.ClearLegacy(ctx); err != nil {
		observability.RecordFailure("migrate")
		return report, fmt.Errorf("%w: clear local data: %v", ErrMigrateFailed, err)
	}
	observability.RecordMigrated(report.Migrated)
	s.logger.Info("legacy measurements migrated", zap.String("user_id", userID), zap.Int("count", report.Migrated), zap.Int("skipped", len(report.Skipped)))
	return report, nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.lists != nil {
		_ = s.lists.Invalidate(ctx, userID)
	}
	if err := s.invalidator.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("cache invalidation", zap.String("user_id", userID), zap.Error(err))
	}
}

// SortByDateDesc orders measurements most recent first, breaking ties by id.
func SortByDateDesc(items []Measurement) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Date.Equal(items[j].Date) {
			return items[i].Date.After(items[j].Date)
		}
		return items[i].ID > items[j].ID
	})
}

func cloneMeasurements(items []Measurement) []Measurement {
	if items == nil {
		return nil
	}
	out := make([]Measurement, len(items))
	copy(out, items)
	return out
}
