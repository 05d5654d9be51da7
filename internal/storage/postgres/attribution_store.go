package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// AttributionStore implements storage.AttributionStore using PostgreSQL.
type AttributionStore struct {
	pool *Pool
}

// NewAttributionStore creates a new AttributionStore.
func NewAttributionStore(pool *Pool) *AttributionStore {
	return &AttributionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AttributionStore = (*AttributionStore)(nil)

var attributionColumns = []string{
	"run_id", "order_id", "date_id", "channel", "acquisition_cost",
	"reason", "consumed_channel", "click_date_id",
}

// InsertBulk adds multiple results atomically with COPY. Fails entire batch on any duplicate.
func (s *AttributionStore) InsertBulk(ctx context.Context, results []*domain.AttributionResult) error {
	if len(results) == 0 {
		return nil
	}

	rows := make([][]any, len(results))
	for i, r := range results {
		if r == nil || r.RunID == "" || r.OrderID == "" {
			return storage.ErrInvalidInput
		}
		rows[i] = []any{
			r.RunID, r.OrderID, r.DateID, r.Channel, r.AcquisitionCost,
			string(r.Reason), r.ConsumedChannel, r.ClickDateID,
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"order_attribution"}, attributionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy attribution results: %w", err)
	}
	return nil
}

// GetByRunID retrieves all results of a run, ordered by date_id, order_id ASC.
func (s *AttributionStore) GetByRunID(ctx context.Context, runID string) ([]*domain.AttributionResult, error) {
	query := `
		SELECT run_id, order_id, date_id, channel, acquisition_cost, reason, consumed_channel, click_date_id
		FROM order_attribution
		WHERE run_id = $1
		ORDER BY date_id ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get attribution by run id: %w", err)
	}
	defer rows.Close()

	var results []*domain.AttributionResult
	for rows.Next() {
		r, err := scanAttribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attribution row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attribution rows: %w", err)
	}
	return results, nil
}

// GetByOrder retrieves one result. Returns ErrNotFound if not exists.
func (s *AttributionStore) GetByOrder(ctx context.Context, runID, orderID string) (*domain.AttributionResult, error) {
	query := `
		SELECT run_id, order_id, date_id, channel, acquisition_cost, reason, consumed_channel, click_date_id
		FROM order_attribution
		WHERE run_id = $1 AND order_id = $2
	`

	r, err := scanAttribution(s.pool.QueryRow(ctx, query, runID, orderID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get attribution by order: %w", err)
	}
	return r, nil
}

func scanAttribution(row pgx.Row) (*domain.AttributionResult, error) {
	var r domain.AttributionResult
	var reason string

	if err := row.Scan(
		&r.RunID, &r.OrderID, &r.DateID, &r.Channel, &r.AcquisitionCost,
		&reason, &r.ConsumedChannel, &r.ClickDateID,
	); err != nil {
		return nil, err
	}

	r.Reason = domain.AttributionReason(reason)
	return &r, nil
}
