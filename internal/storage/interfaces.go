package storage

import (
	"context"

	"causal-commerce-lab/internal/domain"
)

// CalendarStore provides access to the dim_date calendar.
type CalendarStore interface {
	// InsertBulk adds multiple days atomically. Fails entire batch on duplicate date_id.
	InsertBulk(ctx context.Context, days []*domain.CalendarDay) error

	// GetRange retrieves days within [startDateID, endDateID] (inclusive), ordered by date_id ASC.
	GetRange(ctx context.Context, startDateID, endDateID int) ([]*domain.CalendarDay, error)
}

// OrderItemStore provides access to order_items, the real orders the engine attributes.
type OrderItemStore interface {
	// InsertBulk adds multiple items atomically. Fails entire batch on duplicate (order_id, item_seq).
	InsertBulk(ctx context.Context, items []*domain.OrderItem) error

	// GetByDateRange retrieves items within [startDateID, endDateID] (inclusive),
	// ordered by date_id, order_id, item_seq ASC.
	GetByDateRange(ctx context.Context, startDateID, endDateID int) ([]*domain.OrderItem, error)
}

// RunStore provides access to simulation_runs.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// List retrieves all runs, ordered by created_at ASC then run_id.
	List(ctx context.Context) ([]*domain.Run, error)
}

// AttributionStore provides access to order_attribution (ground truth).
type AttributionStore interface {
	// InsertBulk adds multiple results atomically. Fails entire batch on duplicate (run_id, order_id).
	InsertBulk(ctx context.Context, results []*domain.AttributionResult) error

	// GetByRunID retrieves all results of a run, ordered by date_id, order_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.AttributionResult, error)

	// GetByOrder retrieves one result. Returns ErrNotFound if not exists.
	GetByOrder(ctx context.Context, runID, orderID string) (*domain.AttributionResult, error)
}

// ItemCostStore provides access to item_costs.
type ItemCostStore interface {
	// InsertBulk adds multiple rows atomically. Fails entire batch on duplicate (run_id, order_id, item_seq).
	InsertBulk(ctx context.Context, costs []*domain.ItemCost) error

	// GetByRunID retrieves all item costs of a run, ordered by order_id, item_seq ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ItemCost, error)
}

// ExposureStore provides access to the daily channel exposure table.
type ExposureStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate (run_id, date_id, channel).
	InsertBulk(ctx context.Context, rows []*domain.DailyExposure) error

	// GetByRunID retrieves all rows of a run, ordered by date_id, channel ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.DailyExposure, error)

	// GetByDateRange retrieves rows of a run within [startDateID, endDateID] (inclusive).
	GetByDateRange(ctx context.Context, runID string, startDateID, endDateID int) ([]*domain.DailyExposure, error)
}

// DailyPnLStore provides access to the daily marketing P&L.
type DailyPnLStore interface {
	// InsertBulk adds multiple rows. Fails entire batch on duplicate (run_id, date_id).
	InsertBulk(ctx context.Context, rows []*domain.DailyPnL) error

	// GetByRunID retrieves all rows of a run, ordered by date_id ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.DailyPnL, error)
}

// Stores groups every store the engine reads and writes.
type Stores struct {
	Calendar    CalendarStore
	OrderItems  OrderItemStore
	Runs        RunStore
	Attribution AttributionStore
	ItemCosts   ItemCostStore
	Exposure    ExposureStore
	DailyPnL    DailyPnLStore
}
