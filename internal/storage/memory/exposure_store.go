package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// ExposureStore is an in-memory implementation of storage.ExposureStore.
type ExposureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyExposure // keyed by composite key
}

// NewExposureStore creates a new in-memory exposure store.
func NewExposureStore() *ExposureStore {
	return &ExposureStore{
		data: make(map[string]*domain.DailyExposure),
	}
}

func exposureKey(runID string, dateID int, channel string) string {
	return fmt.Sprintf("%s|%d|%s", runID, dateID, channel)
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *ExposureStore) InsertBulk(_ context.Context, rows []*domain.DailyExposure) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.Channel == "" {
			return storage.ErrInvalidInput
		}
		key := exposureKey(r.RunID, r.DateID, r.Channel)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		rowCopy := *r
		s.data[exposureKey(r.RunID, r.DateID, r.Channel)] = &rowCopy
	}
	return nil
}

// GetByRunID retrieves all rows of a run, ordered by date_id, channel ASC.
func (s *ExposureStore) GetByRunID(_ context.Context, runID string) ([]*domain.DailyExposure, error) {
	return s.filter(runID, func(*domain.DailyExposure) bool { return true }), nil
}

// GetByDateRange retrieves rows of a run within [startDateID, endDateID].
func (s *ExposureStore) GetByDateRange(_ context.Context, runID string, startDateID, endDateID int) ([]*domain.DailyExposure, error) {
	return s.filter(runID, func(r *domain.DailyExposure) bool {
		return r.DateID >= startDateID && r.DateID <= endDateID
	}), nil
}

func (s *ExposureStore) filter(runID string, keep func(*domain.DailyExposure) bool) []*domain.DailyExposure {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyExposure
	for _, r := range s.data {
		if r.RunID == runID && keep(r) {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DateID != result[j].DateID {
			return result[i].DateID < result[j].DateID
		}
		return result[i].Channel < result[j].Channel
	})
	return result
}

var _ storage.ExposureStore = (*ExposureStore)(nil)
