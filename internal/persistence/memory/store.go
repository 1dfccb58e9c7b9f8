// Package memory provides an in-process measurement store for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igorgomez/medidascorporais/internal/domain"
)

// Store keeps each user's measurements in memory.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	measurements map[string]map[string]domain.Measurement
	idempotency  map[string]map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		measurements: make(map[string]map[string]domain.Measurement),
		idempotency:  make(map[string]map[string]string),
	}
}

// List implements domain.Store.
func (s *Store) List(ctx context.Context, userID string) ([]domain.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Measurement, 0, len(s.measurements[userID]))
	for _, m := range s.measurements[userID] {
		items = append(items, m)
	}
	domain.SortByDateDesc(items)
	return items, nil
}

// Create implements domain.Store.
func (s *Store) Create(ctx context.Context, userID string, input domain.NewMeasurement, idempotencyKey string) (domain.Measurement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if id, ok := s.idempotency[userID][idempotencyKey]; ok {
			if existing, ok := s.measurements[userID][id]; ok {
				return existing, true, nil
			}
		}
	}

	m := domain.Measurement{
		ID:        uuid.NewString(),
		UserID:    userID,
		Date:      input.Date,
		CreatedAt: s.now(),
		Values:    input.Values,
	}
	if s.measurements[userID] == nil {
		s.measurements[userID] = make(map[string]domain.Measurement)
	}
	s.measurements[userID][m.ID] = m

	if idempotencyKey != "" {
		if s.idempotency[userID] == nil {
			s.idempotency[userID] = make(map[string]string)
		}
		s.idempotency[userID][idempotencyKey] = m.ID
	}
	return m, false, nil
}

// Delete implements domain.Store.
func (s *Store) Delete(ctx context.Context, userID, measurementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.measurements[userID], measurementID)
	for key, id := range s.idempotency[userID] {
		if id == measurementID {
			delete(s.idempotency[userID], key)
		}
	}
	return nil
}
