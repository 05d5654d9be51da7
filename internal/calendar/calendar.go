// Package calendar builds the simulation horizon (dim_date) and annotates it
// with seasonality factors.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/seasonality"
)

// Calendar errors
var (
	ErrInvalidRange = errors.New("calendar end precedes start")
	ErrInvalidDay   = errors.New("invalid calendar day")
	ErrDuplicateDay = errors.New("duplicate calendar day")
)

// Factorer returns the demand factor for a date.
type Factorer interface {
	Factor(t time.Time) float64
}

var _ Factorer = seasonality.Policy{}

// Build returns one CalendarDay per date in [start, end] (inclusive), ordered ascending.
func Build(start, end time.Time, f Factorer) ([]domain.CalendarDay, error) {
	start = truncate(start)
	end = truncate(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var days []domain.CalendarDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, newDay(d, f))
	}
	return days, nil
}

// Annotate normalizes externally supplied calendar rows: it derives the
// date fields from DateID, recomputes the seasonality factor and sorts by date.
func Annotate(rows []domain.CalendarDay, f Factorer) ([]domain.CalendarDay, error) {
	seen := make(map[int]struct{}, len(rows))
	out := make([]domain.CalendarDay, 0, len(rows))
	for _, r := range rows {
		if !domain.ValidDateID(r.DateID) {
			return nil, fmt.Errorf("%w: date_id %d", ErrInvalidDay, r.DateID)
		}
		if _, ok := seen[r.DateID]; ok {
			return nil, fmt.Errorf("%w: date_id %d", ErrDuplicateDay, r.DateID)
		}
		seen[r.DateID] = struct{}{}
		out = append(out, newDay(domain.DateFromID(r.DateID), f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateID < out[j].DateID })
	return out, nil
}

// DateIDs returns the ordered keys of the horizon.
func DateIDs(days []domain.CalendarDay) []int {
	ids := make([]int, len(days))
	for i, d := range days {
		ids[i] = d.DateID
	}
	return ids
}

func newDay(d time.Time, f Factorer) domain.CalendarDay {
	wd := d.Weekday()
	return domain.CalendarDay{
		DateID:            domain.DateIDOf(d),
		Date:              d,
		DayOfWeek:         wd,
		DayName:           wd.String(),
		Month:             int(d.Month()),
		Quarter:           (int(d.Month())-1)/3 + 1,
		IsWeekend:         wd == time.Saturday || wd == time.Sunday,
		SeasonalityFactor: f.Factor(d),
	}
}

func truncate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
