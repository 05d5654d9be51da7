package verification

import (
	"fmt"
	"math"

	"causal-commerce-lab/internal/allocation"
	"causal-commerce-lab/internal/engine"
	"causal-commerce-lab/internal/reporting"
)

// Check represents one invariant criterion.
type Check = reporting.CheckRow

// AllPass reports whether every check passed.
func AllPass(checks []Check) bool {
	for _, c := range checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// CheckInvariants evaluates the accounting invariants of a run result.
func CheckInvariants(res *engine.Result) []Check {
	return []Check{
		checkAttributedOnce(res),
		checkZeroCostOrganic(res),
		checkConservation(res),
		checkDailySpendBound(res),
		checkInventory(res),
		checkItemRoundTrip(res),
		checkWaste(res),
	}
}

// checkAttributedOnce: every order has exactly one attribution.
func checkAttributedOnce(res *engine.Result) Check {
	counts := make(map[string]int, len(res.Attributions))
	for _, a := range res.Attributions {
		counts[a.OrderID]++
	}
	bad := 0
	for _, o := range res.Orders {
		if counts[o.OrderID] != 1 {
			bad++
		}
	}
	if len(counts) != len(res.Orders) {
		bad += abs(len(counts) - len(res.Orders))
	}
	return Check{
		Name:      "Orders attributed exactly once",
		Threshold: "0 violations",
		Actual:    fmt.Sprintf("%d", bad),
		Pass:      bad == 0,
	}
}

// checkZeroCostOrganic: only paid orders carry cost.
func checkZeroCostOrganic(res *engine.Result) Check {
	bad := 0
	for _, a := range res.Attributions {
		if !a.IsPaid() && a.AcquisitionCost != 0 {
			bad++
		}
		if a.AcquisitionCost < 0 {
			bad++
		}
	}
	return Check{
		Name:      "Non-paid orders carry zero cost",
		Threshold: "0 violations",
		Actual:    fmt.Sprintf("%d", bad),
		Pass:      bad == 0,
	}
}

// checkConservation: order costs equal cost booked against spend dates.
func checkConservation(res *engine.Result) Check {
	var orders, booked float64
	for _, a := range res.Attributions {
		orders += a.AcquisitionCost
	}
	for _, b := range res.Bookings {
		booked += b.Amount
	}
	diff := math.Abs(orders - booked)
	return Check{
		Name:      "Attributed cost equals booked spend",
		Threshold: fmt.Sprintf("<= %g", FloatTolerance),
		Actual:    fmt.Sprintf("%.3g", diff),
		Pass:      floatEquals(orders, booked),
	}
}

// checkDailySpendBound: no day attributes more than it spent.
func checkDailySpendBound(res *engine.Result) Check {
	bad := 0
	for _, p := range res.DailyPnL {
		if p.AttributedCost > p.TotalSpend && !floatEquals(p.AttributedCost, p.TotalSpend) {
			bad++
		}
	}
	return Check{
		Name:      "Daily attributed cost within spend",
		Threshold: "0 days over",
		Actual:    fmt.Sprintf("%d", bad),
		Pass:      bad == 0,
	}
}

// checkInventory: counters never go negative or above production, and
// consumption matches the number of draws.
func checkInventory(res *engine.Result) Check {
	bad := 0
	for _, e := range res.Inventory {
		if e.Available < 0 || e.Available > e.Produced {
			bad++
		}
	}
	draws := int64(res.Stats.Paid + res.Stats.Bounced)
	if res.ClicksConsumed != draws {
		bad++
	}
	return Check{
		Name:      "Inventory monotonic",
		Threshold: "0 violations",
		Actual:    fmt.Sprintf("%d (consumed %d of %d)", bad, res.ClicksConsumed, res.ClicksProduced),
		Pass:      bad == 0,
	}
}

// checkItemRoundTrip: item costs sum back to the order cost.
func checkItemRoundTrip(res *engine.Result) Check {
	byOrder := allocation.OrderCosts(res.ItemCosts)
	var worst float64
	for _, a := range res.Attributions {
		if d := math.Abs(byOrder[a.OrderID] - a.AcquisitionCost); d > worst {
			worst = d
		}
	}
	return Check{
		Name:      "Item costs reconstruct order cost",
		Threshold: fmt.Sprintf("<= %g", FloatTolerance),
		Actual:    fmt.Sprintf("%.3g", worst),
		Pass:      worst <= FloatTolerance,
	}
}

// checkWaste: daily waste is max(0, spend - attributed) with sub-cent noise as zero.
func checkWaste(res *engine.Result) Check {
	bad := 0
	for _, p := range res.DailyPnL {
		if !allocation.Close(p.WastedSpend, allocation.Waste(p.TotalSpend, p.AttributedCost), FloatTolerance) {
			bad++
		}
	}
	return Check{
		Name:      "Waste equals unattributed spend",
		Threshold: "0 days off",
		Actual:    fmt.Sprintf("%d", bad),
		Pass:      bad == 0,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
