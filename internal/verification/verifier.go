// Package verification checks that runs are reproducible and that their
// outputs respect the accounting invariants of the engine.
package verification

import (
	"fmt"
	"math"

	"causal-commerce-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons of costs.
const FloatTolerance = 1e-6

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Key      string      // row key, e.g. order_id or date_id
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

func (d FieldDivergence) String() string {
	if d.Key == "" {
		return fmt.Sprintf("%s: stored=%v replayed=%v", d.Field, d.Expected, d.Actual)
	}
	return fmt.Sprintf("%s %s: stored=%v replayed=%v", d.Key, d.Field, d.Expected, d.Actual)
}

// CompareRuns compares two run rows. CreatedAt is ignored.
func CompareRuns(stored, replayed domain.Run) []FieldDivergence {
	var divergences []FieldDivergence
	add := func(field string, expected, actual interface{}) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.RunID != replayed.RunID {
		add("RunID", stored.RunID, replayed.RunID)
	}
	if stored.Tier != replayed.Tier {
		add("Tier", stored.Tier, replayed.Tier)
	}
	if stored.Seed != replayed.Seed {
		add("Seed", stored.Seed, replayed.Seed)
	}
	if stored.ConfigHash != replayed.ConfigHash {
		add("ConfigHash", stored.ConfigHash, replayed.ConfigHash)
	}
	if stored.StartDateID != replayed.StartDateID || stored.EndDateID != replayed.EndDateID {
		add("Horizon",
			fmt.Sprintf("%d..%d", stored.StartDateID, stored.EndDateID),
			fmt.Sprintf("%d..%d", replayed.StartDateID, replayed.EndDateID))
	}
	if stored.Orders != replayed.Orders {
		add("Orders", stored.Orders, replayed.Orders)
	}
	if stored.PaidOrders != replayed.PaidOrders {
		add("PaidOrders", stored.PaidOrders, replayed.PaidOrders)
	}
	if stored.BouncedOrders != replayed.BouncedOrders {
		add("BouncedOrders", stored.BouncedOrders, replayed.BouncedOrders)
	}
	if !floatEquals(stored.TotalSpend, replayed.TotalSpend) {
		add("TotalSpend", stored.TotalSpend, replayed.TotalSpend)
	}
	if !floatEquals(stored.AttributedCost, replayed.AttributedCost) {
		add("AttributedCost", stored.AttributedCost, replayed.AttributedCost)
	}
	if !floatEquals(stored.WastedSpend, replayed.WastedSpend) {
		add("WastedSpend", stored.WastedSpend, replayed.WastedSpend)
	}
	return divergences
}

// CompareAttributions compares results keyed by order_id.
func CompareAttributions(stored, replayed []domain.AttributionResult) []FieldDivergence {
	var divergences []FieldDivergence

	byOrder := make(map[string]domain.AttributionResult, len(replayed))
	for _, r := range replayed {
		byOrder[r.OrderID] = r
	}
	seen := make(map[string]bool, len(stored))

	for _, s := range stored {
		seen[s.OrderID] = true
		r, ok := byOrder[s.OrderID]
		if !ok {
			divergences = append(divergences, FieldDivergence{Key: s.OrderID, Field: "present", Expected: true, Actual: false})
			continue
		}
		if s.Channel != r.Channel {
			divergences = append(divergences, FieldDivergence{Key: s.OrderID, Field: "Channel", Expected: s.Channel, Actual: r.Channel})
		}
		if s.Reason != r.Reason {
			divergences = append(divergences, FieldDivergence{Key: s.OrderID, Field: "Reason", Expected: s.Reason, Actual: r.Reason})
		}
		if !floatEquals(s.AcquisitionCost, r.AcquisitionCost) {
			divergences = append(divergences, FieldDivergence{Key: s.OrderID, Field: "AcquisitionCost", Expected: s.AcquisitionCost, Actual: r.AcquisitionCost})
		}
		if s.ClickDateID != r.ClickDateID {
			divergences = append(divergences, FieldDivergence{Key: s.OrderID, Field: "ClickDateID", Expected: s.ClickDateID, Actual: r.ClickDateID})
		}
	}
	for _, r := range replayed {
		if !seen[r.OrderID] {
			divergences = append(divergences, FieldDivergence{Key: r.OrderID, Field: "present", Expected: false, Actual: true})
		}
	}
	return divergences
}

// CompareDailyPnL compares P&L rows keyed by date_id.
func CompareDailyPnL(stored, replayed []domain.DailyPnL) []FieldDivergence {
	var divergences []FieldDivergence

	byDate := make(map[int]domain.DailyPnL, len(replayed))
	for _, r := range replayed {
		byDate[r.DateID] = r
	}
	if len(stored) != len(replayed) {
		divergences = append(divergences, FieldDivergence{Field: "rows", Expected: len(stored), Actual: len(replayed)})
	}

	for _, s := range stored {
		key := fmt.Sprintf("%d", s.DateID)
		r, ok := byDate[s.DateID]
		if !ok {
			divergences = append(divergences, FieldDivergence{Key: key, Field: "present", Expected: true, Actual: false})
			continue
		}
		if !floatEquals(s.TotalSpend, r.TotalSpend) {
			divergences = append(divergences, FieldDivergence{Key: key, Field: "TotalSpend", Expected: s.TotalSpend, Actual: r.TotalSpend})
		}
		if !floatEquals(s.AttributedCost, r.AttributedCost) {
			divergences = append(divergences, FieldDivergence{Key: key, Field: "AttributedCost", Expected: s.AttributedCost, Actual: r.AttributedCost})
		}
		if s.Orders != r.Orders || s.PaidOrders != r.PaidOrders {
			divergences = append(divergences, FieldDivergence{
				Key: key, Field: "Orders",
				Expected: fmt.Sprintf("%d/%d", s.PaidOrders, s.Orders),
				Actual:   fmt.Sprintf("%d/%d", r.PaidOrders, r.Orders),
			})
		}
	}
	return divergences
}

// floatEquals compares floats with a tolerance relative to their magnitude.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
