package clickhouse

import (
	"context"
	"fmt"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// ExposureStore implements storage.ExposureStore using ClickHouse.
type ExposureStore struct {
	conn *Conn
}

// NewExposureStore creates a new ExposureStore.
func NewExposureStore(conn *Conn) *ExposureStore {
	return &ExposureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ExposureStore = (*ExposureStore)(nil)

func exposureKey(dateID int, channel string) string {
	return fmt.Sprintf("%d|%s", dateID, channel)
}

// InsertBulk adds multiple rows. Fails entire batch on any duplicate.
func (s *ExposureStore) InsertBulk(ctx context.Context, rows []*domain.DailyExposure) error {
	if len(rows) == 0 {
		return nil
	}

	// Intra-batch duplicates, grouped by run
	seen := make(map[string]map[string]struct{})
	for _, r := range rows {
		if r == nil || r.RunID == "" || r.Channel == "" {
			return storage.ErrInvalidInput
		}
		byRun, ok := seen[r.RunID]
		if !ok {
			byRun = make(map[string]struct{})
			seen[r.RunID] = byRun
		}
		key := exposureKey(r.DateID, r.Channel)
		if _, exists := byRun[key]; exists {
			return storage.ErrDuplicateKey
		}
		byRun[key] = struct{}{}
	}

	// Duplicates against existing rows
	for runID, batchKeys := range seen {
		existing, err := existingKeys(ctx, s.conn, `
			SELECT concat(toString(date_id), '|', channel)
			FROM fact_marketing_daily FINAL
			WHERE run_id = ?
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
		INSERT INTO fact_marketing_daily (
			run_id, date_id, channel, spend, impressions, raw_clicks,
			adstock_value, efficiency_factor, effective_click_rate, cost_per_click
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.RunID, uint32(r.DateID), r.Channel, r.Spend, r.Impressions, r.RawClicks,
			r.AdstockValue, r.EfficiencyFactor, r.EffectiveClickRate, r.CostPerClick,
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

// GetByRunID retrieves all rows of a run, ordered by date_id, channel ASC.
func (s *ExposureStore) GetByRunID(ctx context.Context, runID string) ([]*domain.DailyExposure, error) {
	query := `
		SELECT
			run_id, date_id, channel, spend, impressions, raw_clicks,
			adstock_value, efficiency_factor, effective_click_rate, cost_per_click
		FROM fact_marketing_daily FINAL
		WHERE run_id = ?
		ORDER BY date_id ASC, channel ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query exposure by run: %w", err)
	}
	defer rows.Close()

	return scanExposure(rows)
}

// GetByDateRange retrieves rows of a run within [startDateID, endDateID].
func (s *ExposureStore) GetByDateRange(ctx context.Context, runID string, startDateID, endDateID int) ([]*domain.DailyExposure, error) {
	query := `
		SELECT
			run_id, date_id, channel, spend, impressions, raw_clicks,
			adstock_value, efficiency_factor, effective_click_rate, cost_per_click
		FROM fact_marketing_daily FINAL
		WHERE run_id = ? AND date_id >= ? AND date_id <= ?
		ORDER BY date_id ASC, channel ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, uint32(startDateID), uint32(endDateID))
	if err != nil {
		return nil, fmt.Errorf("query exposure by date range: %w", err)
	}
	defer rows.Close()

	return scanExposure(rows)
}

func scanExposure(rows chRows) ([]*domain.DailyExposure, error) {
	var result []*domain.DailyExposure

	for rows.Next() {
		var r domain.DailyExposure
		var dateID uint32
		err := rows.Scan(
			&r.RunID, &dateID, &r.Channel, &r.Spend, &r.Impressions, &r.RawClicks,
			&r.AdstockValue, &r.EfficiencyFactor, &r.EffectiveClickRate, &r.CostPerClick,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exposure row: %w", err)
		}
		r.DateID = int(dateID)
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exposure rows: %w", err)
	}
	return result, nil
}
