package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// ItemCostStore implements storage.ItemCostStore using PostgreSQL.
type ItemCostStore struct {
	pool *Pool
}

// NewItemCostStore creates a new ItemCostStore.
func NewItemCostStore(pool *Pool) *ItemCostStore {
	return &ItemCostStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ItemCostStore = (*ItemCostStore)(nil)

// InsertBulk adds multiple rows atomically with COPY. Fails entire batch on any duplicate.
func (s *ItemCostStore) InsertBulk(ctx context.Context, costs []*domain.ItemCost) error {
	if len(costs) == 0 {
		return nil
	}

	rows := make([][]any, len(costs))
	for i, c := range costs {
		if c == nil || c.RunID == "" || c.OrderID == "" {
			return storage.ErrInvalidInput
		}
		rows[i] = []any{c.RunID, c.OrderID, c.ItemSeq, c.DateID, c.Channel, c.Price, c.GMVShare, c.AcquisitionCost}
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"item_costs"},
		[]string{"run_id", "order_id", "item_seq", "date_id", "channel", "price", "gmv_share", "acquisition_cost"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy item costs: %w", err)
	}
	return nil
}

// GetByRunID retrieves all item costs of a run, ordered by order_id, item_seq ASC.
func (s *ItemCostStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ItemCost, error) {
	query := `
		SELECT run_id, order_id, item_seq, date_id, channel, price, gmv_share, acquisition_cost
		FROM item_costs
		WHERE run_id = $1
		ORDER BY order_id ASC, item_seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get item costs by run id: %w", err)
	}
	defer rows.Close()

	var costs []*domain.ItemCost
	for rows.Next() {
		var c domain.ItemCost
		if err := rows.Scan(&c.RunID, &c.OrderID, &c.ItemSeq, &c.DateID, &c.Channel, &c.Price, &c.GMVShare, &c.AcquisitionCost); err != nil {
			return nil, fmt.Errorf("scan item cost row: %w", err)
		}
		costs = append(costs, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item cost rows: %w", err)
	}
	return costs, nil
}
