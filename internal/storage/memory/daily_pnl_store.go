package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// DailyPnLStore is an in-memory implementation of storage.DailyPnLStore.
type DailyPnLStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyPnL // keyed by composite key
}

// NewDailyPnLStore creates a new in-memory daily P&L store.
func NewDailyPnLStore() *DailyPnLStore {
	return &DailyPnLStore{
		data: make(map[string]*domain.DailyPnL),
	}
}

func pnlKey(runID string, dateID int) string {
	return fmt.Sprintf("%s|%d", runID, dateID)
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *DailyPnLStore) InsertBulk(_ context.Context, rows []*domain.DailyPnL) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		key := pnlKey(r.RunID, r.DateID)

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
		s.data[pnlKey(r.RunID, r.DateID)] = &rowCopy
	}
	return nil
}

// GetByRunID retrieves all rows of a run, ordered by date_id ASC.
func (s *DailyPnLStore) GetByRunID(_ context.Context, runID string) ([]*domain.DailyPnL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyPnL
	for _, r := range s.data {
		if r.RunID == runID {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DateID < result[j].DateID
	})
	return result, nil
}

var _ storage.DailyPnLStore = (*DailyPnLStore)(nil)
