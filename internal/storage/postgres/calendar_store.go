package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// CalendarStore implements storage.CalendarStore using PostgreSQL.
type CalendarStore struct {
	pool *Pool
}

// NewCalendarStore creates a new CalendarStore.
func NewCalendarStore(pool *Pool) *CalendarStore {
	return &CalendarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CalendarStore = (*CalendarStore)(nil)

// InsertBulk adds multiple days atomically. Fails entire batch on any duplicate.
func (s *CalendarStore) InsertBulk(ctx context.Context, days []*domain.CalendarDay) error {
	if len(days) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO dim_date (
			date_id, date, day_of_week, day_name, month, quarter, is_weekend, seasonality_factor
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, d := range days {
		if d == nil {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			d.DateID, d.Date, int(d.DayOfWeek), d.DayName, d.Month, d.Quarter, d.IsWeekend, d.SeasonalityFactor,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert calendar day: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRange retrieves days within [startDateID, endDateID], ordered by date_id ASC.
func (s *CalendarStore) GetRange(ctx context.Context, startDateID, endDateID int) ([]*domain.CalendarDay, error) {
	query := `
		SELECT date_id, date, day_of_week, day_name, month, quarter, is_weekend, seasonality_factor
		FROM dim_date
		WHERE date_id >= $1 AND date_id <= $2
		ORDER BY date_id ASC
	`

	rows, err := s.pool.Query(ctx, query, startDateID, endDateID)
	if err != nil {
		return nil, fmt.Errorf("get calendar range: %w", err)
	}
	defer rows.Close()

	return scanCalendarDays(rows)
}

func scanCalendarDays(rows pgx.Rows) ([]*domain.CalendarDay, error) {
	var days []*domain.CalendarDay

	for rows.Next() {
		var d domain.CalendarDay
		var date time.Time
		var dow int

		if err := rows.Scan(
			&d.DateID, &date, &dow, &d.DayName, &d.Month, &d.Quarter, &d.IsWeekend, &d.SeasonalityFactor,
		); err != nil {
			return nil, fmt.Errorf("scan calendar row: %w", err)
		}
		d.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		d.DayOfWeek = time.Weekday(dow)
		days = append(days, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar rows: %w", err)
	}
	return days, nil
}
