package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// ItemCostStore is an in-memory implementation of storage.ItemCostStore.
type ItemCostStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ItemCost // keyed by composite key
}

// NewItemCostStore creates a new in-memory item cost store.
func NewItemCostStore() *ItemCostStore {
	return &ItemCostStore{
		data: make(map[string]*domain.ItemCost),
	}
}

func itemCostKey(runID, orderID string, itemSeq int) string {
	return fmt.Sprintf("%s|%s|%d", runID, orderID, itemSeq)
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *ItemCostStore) InsertBulk(_ context.Context, costs []*domain.ItemCost) error {
	if len(costs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(costs))
	for _, c := range costs {
		if c == nil || c.RunID == "" || c.OrderID == "" {
			return storage.ErrInvalidInput
		}
		key := itemCostKey(c.RunID, c.OrderID, c.ItemSeq)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, c := range costs {
		costCopy := *c
		s.data[itemCostKey(c.RunID, c.OrderID, c.ItemSeq)] = &costCopy
	}
	return nil
}

// GetByRunID retrieves all item costs of a run, ordered by order_id, item_seq ASC.
func (s *ItemCostStore) GetByRunID(_ context.Context, runID string) ([]*domain.ItemCost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ItemCost
	for _, c := range s.data {
		if c.RunID == runID {
			costCopy := *c
			result = append(result, &costCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].OrderID != result[j].OrderID {
			return result[i].OrderID < result[j].OrderID
		}
		return result[i].ItemSeq < result[j].ItemSeq
	})
	return result, nil
}

var _ storage.ItemCostStore = (*ItemCostStore)(nil)
