// Package allocation converts order-level attribution into item-level
// acquisition cost and rolls spend up into the daily marketing P&L.
package allocation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"causal-commerce-lab/internal/domain"
)

// Basis selects how an order's acquisition cost is derived.
type Basis string

const (
	// BasisClick uses the unit cost of the consumed click.
	BasisClick Basis = "click"
	// BasisSpendPerOrder spreads channel-day spend evenly over the channel-day's paid orders.
	BasisSpendPerOrder Basis = "spend_per_order"
)

// WasteEpsilon is the waste below which a day is treated as fully attributed.
const WasteEpsilon = 0.01

// Allocation errors
var (
	ErrInvalidItem         = errors.New("invalid order item")
	ErrUnattributedOrder   = errors.New("order has no attribution")
	ErrDuplicateAttributed = errors.New("order attributed more than once")
	ErrUnknownBasis        = errors.New("unknown cost basis")
)

// ParseBasis validates a basis name; empty selects BasisClick.
func ParseBasis(s string) (Basis, error) {
	switch Basis(s) {
	case "", BasisClick:
		return BasisClick, nil
	case BasisSpendPerOrder:
		return BasisSpendPerOrder, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownBasis, s)
	}
}

// AggregateOrders rolls item rows up to order grain, ordered by date then order_id.
// An order's date is the earliest date among its items.
func AggregateOrders(items []domain.OrderItem) ([]domain.Order, error) {
	byID := make(map[string]*domain.Order)
	for _, it := range items {
		if it.OrderID == "" || it.Price < 0 {
			return nil, fmt.Errorf("%w: %+v", ErrInvalidItem, it)
		}
		o, ok := byID[it.OrderID]
		if !ok {
			o = &domain.Order{OrderID: it.OrderID, DateID: it.DateID}
			byID[it.OrderID] = o
		}
		if it.DateID < o.DateID {
			o.DateID = it.DateID
		}
		o.Price += it.Price
		o.FreightValue += it.FreightValue
		o.ItemCount++
	}

	orders := make([]domain.Order, 0, len(byID))
	for _, o := range byID {
		orders = append(orders, *o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].DateID != orders[j].DateID {
			return orders[i].DateID < orders[j].DateID
		}
		return orders[i].OrderID < orders[j].OrderID
	})
	return orders, nil
}

// AllocateItems distributes each order's acquisition cost over its items by
// GMV share (price / order total). Orders with zero total split evenly. The
// last item of an order takes the remainder so items sum back to the order cost.
// The output is ordered by order_id, then item_seq. Inputs are not modified.
func AllocateItems(items []domain.OrderItem, attributions []domain.AttributionResult) ([]domain.ItemCost, error) {
	attr := make(map[string]domain.AttributionResult, len(attributions))
	for _, a := range attributions {
		if _, dup := attr[a.OrderID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAttributed, a.OrderID)
		}
		attr[a.OrderID] = a
	}

	grouped := make(map[string][]domain.OrderItem)
	var ids []string
	for _, it := range items {
		if it.OrderID == "" {
			return nil, fmt.Errorf("%w: missing order_id", ErrInvalidItem)
		}
		if _, ok := grouped[it.OrderID]; !ok {
			ids = append(ids, it.OrderID)
		}
		grouped[it.OrderID] = append(grouped[it.OrderID], it)
	}
	sort.Strings(ids)

	out := make([]domain.ItemCost, 0, len(items))
	for _, id := range ids {
		a, ok := attr[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnattributedOrder, id)
		}

		lines := append([]domain.OrderItem(nil), grouped[id]...)
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].ItemSeq < lines[j].ItemSeq })

		var total float64
		for _, it := range lines {
			total += it.Price
		}

		var allocated float64
		for i, it := range lines {
			share := 1.0 / float64(len(lines))
			if total > 0 {
				share = it.Price / total
			}
			cost := a.AcquisitionCost * share
			if i == len(lines)-1 {
				cost = a.AcquisitionCost - allocated
			}
			allocated += cost

			out = append(out, domain.ItemCost{
				RunID:           a.RunID,
				OrderID:         id,
				ItemSeq:         it.ItemSeq,
				DateID:          it.DateID,
				Channel:         a.Channel,
				Price:           it.Price,
				GMVShare:        share,
				AcquisitionCost: cost,
			})
		}
	}
	return out, nil
}

// SpendPerOrder re-costs paid attributions with channel-day spend divided by
// the channel-day's paid order count. Channels without exposure rows (organic,
// unknown) fall back to zero cost. Returns the re-costed copy and matching
// bookings (one per funded channel-day, on the order date).
func SpendPerOrder(exposure []domain.DailyExposure, attributions []domain.AttributionResult) ([]domain.AttributionResult, []domain.CostBooking) {
	type key struct {
		dateID  int
		channel string
	}
	spend := make(map[key]float64)
	rank := make(map[string]int)
	for _, e := range exposure {
		spend[key{e.DateID, e.Channel}] += e.Spend
		if _, ok := rank[e.Channel]; !ok {
			rank[e.Channel] = len(rank)
		}
	}

	paid := make(map[key]int)
	for _, a := range attributions {
		if a.IsPaid() {
			paid[key{a.DateID, a.Channel}]++
		}
	}

	out := make([]domain.AttributionResult, len(attributions))
	for i, a := range attributions {
		out[i] = a
		if !a.IsPaid() {
			out[i].AcquisitionCost = 0
			continue
		}
		k := key{a.DateID, a.Channel}
		if n := paid[k]; n > 0 {
			out[i].AcquisitionCost = spend[k] / float64(n)
		} else {
			out[i].AcquisitionCost = 0
		}
	}

	var bookings []domain.CostBooking
	for k, n := range paid {
		if n == 0 || spend[k] <= 0 {
			continue
		}
		bookings = append(bookings, domain.CostBooking{SpendDateID: k.dateID, Channel: k.channel, Amount: spend[k]})
	}
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].SpendDateID != bookings[j].SpendDateID {
			return bookings[i].SpendDateID < bookings[j].SpendDateID
		}
		return rank[bookings[i].Channel] < rank[bookings[j].Channel]
	})
	return out, bookings
}

// Waste returns max(0, spend - attributed), treating values at or below
// WasteEpsilon as zero.
func Waste(spend, attributed float64) float64 {
	w := spend - attributed
	if w <= WasteEpsilon {
		return 0
	}
	return w
}

// DailyPnL builds one row per date that has spend or orders, ascending.
// Attributed cost comes from bookings keyed by spend date.
func DailyPnL(exposure []domain.DailyExposure, attributions []domain.AttributionResult, bookings []domain.CostBooking) []domain.DailyPnL {
	rows := make(map[int]*domain.DailyPnL)
	get := func(d int) *domain.DailyPnL {
		r, ok := rows[d]
		if !ok {
			r = &domain.DailyPnL{DateID: d}
			rows[d] = r
		}
		return r
	}

	for _, e := range exposure {
		get(e.DateID).TotalSpend += e.Spend
	}
	for _, b := range bookings {
		get(b.SpendDateID).AttributedCost += b.Amount
	}
	for _, a := range attributions {
		r := get(a.DateID)
		r.Orders++
		if a.IsPaid() {
			r.PaidOrders++
		}
	}

	out := make([]domain.DailyPnL, 0, len(rows))
	for _, r := range rows {
		r.WastedSpend = Waste(r.TotalSpend, r.AttributedCost)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateID < out[j].DateID })
	return out
}

// OrderCosts sums item costs back to order grain.
func OrderCosts(items []domain.ItemCost) map[string]float64 {
	out := make(map[string]float64)
	for _, it := range items {
		out[it.OrderID] += it.AcquisitionCost
	}
	return out
}

// Close reports whether two costs agree within tol.
func Close(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
