package memory

import (
	"context"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// AttributionStore is an in-memory implementation of storage.AttributionStore.
type AttributionStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*domain.AttributionResult // run_id -> order_id -> result
}

// NewAttributionStore creates a new in-memory attribution store.
func NewAttributionStore() *AttributionStore {
	return &AttributionStore{
		data: make(map[string]map[string]*domain.AttributionResult),
	}
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *AttributionStore) InsertBulk(_ context.Context, results []*domain.AttributionResult) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[[2]string]struct{}, len(results))
	for _, r := range results {
		if r == nil || r.RunID == "" || r.OrderID == "" {
			return storage.ErrInvalidInput
		}
		key := [2]string{r.RunID, r.OrderID}

		if _, exists := s.data[r.RunID][r.OrderID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range results {
		byOrder, ok := s.data[r.RunID]
		if !ok {
			byOrder = make(map[string]*domain.AttributionResult)
			s.data[r.RunID] = byOrder
		}
		resCopy := *r
		byOrder[r.OrderID] = &resCopy
	}
	return nil
}

// GetByRunID retrieves all results of a run, ordered by date_id, order_id ASC.
func (s *AttributionStore) GetByRunID(_ context.Context, runID string) ([]*domain.AttributionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AttributionResult, 0, len(s.data[runID]))
	for _, r := range s.data[runID] {
		resCopy := *r
		result = append(result, &resCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DateID != result[j].DateID {
			return result[i].DateID < result[j].DateID
		}
		return result[i].OrderID < result[j].OrderID
	})
	return result, nil
}

// GetByOrder retrieves one result. Returns ErrNotFound if not exists.
func (s *AttributionStore) GetByOrder(_ context.Context, runID, orderID string) (*domain.AttributionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID][orderID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	resCopy := *r
	return &resCopy, nil
}

var _ storage.AttributionStore = (*AttributionStore)(nil)
