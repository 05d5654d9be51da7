package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// OrderItemStore implements storage.OrderItemStore using PostgreSQL.
type OrderItemStore struct {
	pool *Pool
}

// NewOrderItemStore creates a new OrderItemStore.
func NewOrderItemStore(pool *Pool) *OrderItemStore {
	return &OrderItemStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderItemStore = (*OrderItemStore)(nil)

// InsertBulk adds multiple items atomically with COPY. Fails entire batch on any duplicate.
func (s *OrderItemStore) InsertBulk(ctx context.Context, items []*domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	rows := make([][]any, len(items))
	for i, it := range items {
		if it == nil || it.OrderID == "" {
			return storage.ErrInvalidInput
		}
		rows[i] = []any{it.OrderID, it.ItemSeq, it.DateID, it.ProductID, it.Price, it.FreightValue}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "item_seq", "date_id", "product_id", "price", "freight_value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy order items: %w", err)
	}
	return nil
}

// GetByDateRange retrieves items within [startDateID, endDateID],
// ordered by date_id, order_id, item_seq ASC.
func (s *OrderItemStore) GetByDateRange(ctx context.Context, startDateID, endDateID int) ([]*domain.OrderItem, error) {
	query := `
		SELECT order_id, item_seq, date_id, product_id, price, freight_value
		FROM order_items
		WHERE date_id >= $1 AND date_id <= $2
		ORDER BY date_id ASC, order_id ASC, item_seq ASC
	`

	rows, err := s.pool.Query(ctx, query, startDateID, endDateID)
	if err != nil {
		return nil, fmt.Errorf("get order items by date range: %w", err)
	}
	defer rows.Close()

	var items []*domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ItemSeq, &it.DateID, &it.ProductID, &it.Price, &it.FreightValue); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}
	return items, nil
}
