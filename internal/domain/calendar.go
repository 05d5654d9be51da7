package domain

import (
	"fmt"
	"time"
)

// CalendarDay is one row of the simulation horizon (dim_date).
type CalendarDay struct {
	DateID            int          // YYYYMMDD key
	Date              time.Time    // midnight UTC
	DayOfWeek         time.Weekday // Sunday = 0
	DayName           string       // "Monday", ...
	Month             int          // 1..12
	Quarter           int          // 1..4
	IsWeekend         bool
	SeasonalityFactor float64 // demand multiplier, always > 0
}

// DateIDOf returns the YYYYMMDD key for t (in UTC).
func DateIDOf(t time.Time) int {
	t = t.UTC()
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// DateFromID converts a YYYYMMDD key back to a UTC date.
func DateFromID(dateID int) time.Time {
	return time.Date(dateID/10000, time.Month((dateID/100)%100), dateID%100, 0, 0, 0, 0, time.UTC)
}

// AddDays shifts a YYYYMMDD key by n calendar days (n may be negative).
func AddDays(dateID, n int) int {
	return DateIDOf(DateFromID(dateID).AddDate(0, 0, n))
}

// ValidDateID reports whether dateID names a real calendar date.
func ValidDateID(dateID int) bool {
	if dateID < 10000101 || dateID > 99991231 {
		return false
	}
	return DateIDOf(DateFromID(dateID)) == dateID
}

// FormatDateID renders a YYYYMMDD key as YYYY-MM-DD.
func FormatDateID(dateID int) string {
	return fmt.Sprintf("%04d-%02d-%02d", dateID/10000, (dateID/100)%100, dateID%100)
}
