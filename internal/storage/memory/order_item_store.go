package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// OrderItemStore is an in-memory implementation of storage.OrderItemStore.
type OrderItemStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OrderItem // keyed by composite key
}

// NewOrderItemStore creates a new in-memory order item store.
func NewOrderItemStore() *OrderItemStore {
	return &OrderItemStore{
		data: make(map[string]*domain.OrderItem),
	}
}

func orderItemKey(orderID string, itemSeq int) string {
	return fmt.Sprintf("%s|%d", orderID, itemSeq)
}

// InsertBulk adds multiple items atomically. Fails entire batch on any duplicate.
func (s *OrderItemStore) InsertBulk(_ context.Context, items []*domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it == nil || it.OrderID == "" || it.Price < 0 {
			return storage.ErrInvalidInput
		}
		key := orderItemKey(it.OrderID, it.ItemSeq)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, it := range items {
		itemCopy := *it
		s.data[orderItemKey(it.OrderID, it.ItemSeq)] = &itemCopy
	}
	return nil
}

// GetByDateRange retrieves items within [startDateID, endDateID],
// ordered by date_id, order_id, item_seq ASC.
func (s *OrderItemStore) GetByDateRange(_ context.Context, startDateID, endDateID int) ([]*domain.OrderItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OrderItem
	for _, it := range s.data {
		if it.DateID >= startDateID && it.DateID <= endDateID {
			itemCopy := *it
			result = append(result, &itemCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].DateID != result[j].DateID {
			return result[i].DateID < result[j].DateID
		}
		if result[i].OrderID != result[j].OrderID {
			return result[i].OrderID < result[j].OrderID
		}
		return result[i].ItemSeq < result[j].ItemSeq
	})
	return result, nil
}

var _ storage.OrderItemStore = (*OrderItemStore)(nil)
