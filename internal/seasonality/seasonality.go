// Package seasonality maps calendar dates to multiplicative demand factors.
package seasonality

import (
	"errors"
	"fmt"
	"time"
)

// Policy errors
var (
	ErrUnknownPolicy = errors.New("unknown seasonality policy")
	ErrInvalidFactor = errors.New("seasonality factor must be > 0")
	ErrInvalidWindow = errors.New("invalid seasonality window")
)

// Policy names
const (
	PolicyDefault  = "default"
	PolicyTraining = "training"
)

// Window is an annual month/day range (inclusive) with a demand multiplier.
// A window whose end precedes its start wraps over the new year.
type Window struct {
	Name       string
	StartMonth time.Month
	StartDay   int
	EndMonth   time.Month
	EndDay     int
	Multiplier float64
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	x := int(t.Month())*100 + t.Day()
	start := int(w.StartMonth)*100 + w.StartDay
	end := int(w.EndMonth)*100 + w.EndDay
	if start <= end {
		return x >= start && x <= end
	}
	return x >= start || x <= end
}

// Policy is a table of seasonal windows (first match wins) combined with a
// day-of-week adjustment.
type Policy struct {
	Name     string
	Windows  []Window
	Weekdays map[time.Weekday]float64
}

// Factor returns the demand multiplier for the date. Always > 0.
func (p Policy) Factor(t time.Time) float64 {
	f := 1.0
	for _, w := range p.Windows {
		if w.Contains(t) {
			f = w.Multiplier
			break
		}
	}
	if m, ok := p.Weekdays[t.Weekday()]; ok {
		f *= m
	}
	if f <= 0 {
		return 1.0
	}
	return f
}

// Validate checks every multiplier is positive and every window is a real date range.
func (p Policy) Validate() error {
	for _, w := range p.Windows {
		if w.Multiplier <= 0 {
			return fmt.Errorf("window %q: %w", w.Name, ErrInvalidFactor)
		}
		if !validMonthDay(w.StartMonth, w.StartDay) || !validMonthDay(w.EndMonth, w.EndDay) {
			return fmt.Errorf("window %q: %w", w.Name, ErrInvalidWindow)
		}
	}
	for d, m := range p.Weekdays {
		if m <= 0 {
			return fmt.Errorf("weekday %s: %w", d, ErrInvalidFactor)
		}
	}
	return nil
}

func validMonthDay(m time.Month, d int) bool {
	if m < time.January || m > time.December || d < 1 {
		return false
	}
	// leap year so Feb 29 is accepted
	last := time.Date(2024, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return d <= last
}

// Default is the market-engine demand curve: a late-November sales window,
// a December pre-holiday lift, a January slump and two minor spring peaks.
func Default() Policy {
	return Policy{
		Name: PolicyDefault,
		Windows: []Window{
			{Name: "black_friday", StartMonth: time.November, StartDay: 10, EndMonth: time.November, EndDay: 29, Multiplier: 3.5},
			{Name: "christmas", StartMonth: time.December, StartDay: 1, EndMonth: time.December, EndDay: 15, Multiplier: 1.8},
			{Name: "january_slump", StartMonth: time.January, StartDay: 1, EndMonth: time.January, EndDay: 31, Multiplier: 0.8},
			{Name: "carnival", StartMonth: time.February, StartDay: 5, EndMonth: time.February, EndDay: 12, Multiplier: 1.3},
			{Name: "mothers_day", StartMonth: time.May, StartDay: 1, EndMonth: time.May, EndDay: 10, Multiplier: 1.4},
		},
		Weekdays: map[time.Weekday]float64{
			time.Monday:   1.1,
			time.Saturday: 0.8,
			time.Sunday:   0.9,
		},
	}
}

// Training is the single-process engine curve.
func Training() Policy {
	return Policy{
		Name: PolicyTraining,
		Windows: []Window{
			{Name: "black_friday", StartMonth: time.November, StartDay: 20, EndMonth: time.November, EndDay: 26, Multiplier: 4.0},
			{Name: "christmas", StartMonth: time.December, StartDay: 1, EndMonth: time.December, EndDay: 20, Multiplier: 1.8},
		},
		Weekdays: map[time.Weekday]float64{
			time.Monday:   1.1,
			time.Saturday: 0.8,
		},
	}
}

// Lookup returns a named policy.
func Lookup(name string) (Policy, error) {
	switch name {
	case "", PolicyDefault:
		return Default(), nil
	case PolicyTraining:
		return Training(), nil
	default:
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, name)
	}
}
