package memory

import (
	"context"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// CalendarStore is an in-memory implementation of storage.CalendarStore.
type CalendarStore struct {
	mu   sync.RWMutex
	data map[int]*domain.CalendarDay // keyed by date_id
}

// NewCalendarStore creates a new in-memory calendar store.
func NewCalendarStore() *CalendarStore {
	return &CalendarStore{
		data: make(map[int]*domain.CalendarDay),
	}
}

// InsertBulk adds multiple days atomically. Fails entire batch on any duplicate.
func (s *CalendarStore) InsertBulk(_ context.Context, days []*domain.CalendarDay) error {
	if len(days) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[int]struct{}, len(days))
	for _, d := range days {
		if d == nil || !domain.ValidDateID(d.DateID) {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[d.DateID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[d.DateID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[d.DateID] = struct{}{}
	}

	for _, d := range days {
		dayCopy := *d
		s.data[d.DateID] = &dayCopy
	}
	return nil
}

// GetRange retrieves days within [startDateID, endDateID], ordered by date_id ASC.
func (s *CalendarStore) GetRange(_ context.Context, startDateID, endDateID int) ([]*domain.CalendarDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CalendarDay
	for id, d := range s.data {
		if id >= startDateID && id <= endDateID {
			dayCopy := *d
			result = append(result, &dayCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DateID < result[j].DateID
	})
	return result, nil
}

var _ storage.CalendarStore = (*CalendarStore)(nil)
