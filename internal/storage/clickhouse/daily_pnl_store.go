package clickhouse

import (
	"context"
	"fmt"
	"strconv"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// DailyPnLStore implements storage.DailyPnLStore using ClickHouse.
type DailyPnLStore struct {
	conn *Conn
}

// NewDailyPnLStore creates a new DailyPnLStore.
func NewDailyPnLStore(conn *Conn) *DailyPnLStore {
	return &DailyPnLStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DailyPnLStore = (*DailyPnLStore)(nil)

// InsertBulk adds multiple rows. Fails entire batch on any duplicate.
func (s *DailyPnLStore) InsertBulk(ctx context.Context, rows []*domain.DailyPnL) error {
	if len(rows) == 0 {
		return nil
	}

	seen := make(map[string]map[string]struct{})
	for _, r := range rows {
		if r == nil || r.RunID == "" {
			return storage.ErrInvalidInput
		}
		byRun, ok := seen[r.RunID]
		if !ok {
			byRun = make(map[string]struct{})
			seen[r.RunID] = byRun
		}
		key := strconv.Itoa(r.DateID)
		if _, exists := byRun[key]; exists {
			return storage.ErrDuplicateKey
		}
		byRun[key] = struct{}{}
	}

	for runID, batchKeys := range seen {
		existing, err := existingKeys(ctx, s.conn, `
			SELECT toString(date_id) FROM fact_daily_pnl FINAL WHERE run_id = ?
		`, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for key := range batchKeys {
			if _, exists := existing[key]; exists {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fact_daily_pnl (
			run_id, date_id, total_spend, attributed_cost, wasted_spend, orders, paid_orders
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.RunID, uint32(r.DateID), r.TotalSpend, r.AttributedCost, r.WastedSpend,
			int64(r.Orders), int64(r.PaidOrders),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all rows of a run, ordered by date_id ASC.
func (s *DailyPnLStore) GetByRunID(ctx context.Context, runID string) ([]*domain.DailyPnL, error) {
	query := `
		SELECT run_id, date_id, total_spend, attributed_cost, wasted_spend, orders, paid_orders
		FROM fact_daily_pnl FINAL
		WHERE run_id = ?
		ORDER BY date_id ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query daily pnl by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.DailyPnL
	for rows.Next() {
		var r domain.DailyPnL
		var dateID uint32
		var orders, paid int64
		if err := rows.Scan(&r.RunID, &dateID, &r.TotalSpend, &r.AttributedCost, &r.WastedSpend, &orders, &paid); err != nil {
			return nil, fmt.Errorf("scan daily pnl row: %w", err)
		}
		r.DateID = int(dateID)
		r.Orders = int(orders)
		r.PaidOrders = int(paid)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily pnl rows: %w", err)
	}
	return result, nil
}
