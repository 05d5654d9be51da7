package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, tier, seed, policy, inventory_mode, cost_basis,
	start_date_id, end_date_id, orders, paid_orders, bounced_orders,
	total_spend, attributed_cost, wasted_spend, config_hash, created_at
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_runs (` + runColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.Tier, int64(r.Seed), r.Policy, r.InventoryMode, r.CostBasis,
		r.StartDateID, r.EndDateID, r.Orders, r.PaidOrders, r.BouncedOrders,
		r.TotalSpend, r.AttributedCost, r.WastedSpend, r.ConfigHash, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List retrieves all runs, ordered by created_at ASC then run_id.
func (s *RunStore) List(ctx context.Context) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM simulation_runs ORDER BY created_at ASC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans a single row into a Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var r domain.Run
	var seed int64

	err := row.Scan(
		&r.RunID, &r.Tier, &seed, &r.Policy, &r.InventoryMode, &r.CostBasis,
		&r.StartDateID, &r.EndDateID, &r.Orders, &r.PaidOrders, &r.BouncedOrders,
		&r.TotalSpend, &r.AttributedCost, &r.WastedSpend, &r.ConfigHash, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Seed = uint64(seed)
	return &r, nil
}
