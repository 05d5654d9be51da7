package attribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/inventory"
)

const day = 20170110

func row(dateID int, channel string, spend float64, clicks int64) domain.DailyExposure {
	r := domain.DailyExposure{DateID: dateID, Channel: channel, Spend: spend, RawClicks: clicks}
	if clicks > 0 {
		r.CostPerClick = spend / float64(clicks)
	}
	return r
}

func makeOrders(dateID, n int) []domain.Order {
	orders := make([]domain.Order, n)
	for i := range orders {
		orders[i] = domain.Order{OrderID: fmt.Sprintf("o-%d-%03d", dateID, i), DateID: dateID, Price: 100, ItemCount: 1}
	}
	return orders
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func count(res *Result, reason domain.AttributionReason) int {
	n := 0
	for _, r := range res.Attributions {
		if r.Reason == reason {
			n++
		}
	}
	return n
}

func TestRun_ScarcityCorrectness(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{
		row(day, "A", 30, 3),
		row(day, "B", 20, 2),
	})
	m := NewMatcher(inv, newRNG(1), Options{Policy: PolicyScarcity, LookbackDays: 2})

	res := m.Run(makeOrders(day, 10))

	if len(res.Attributions) != 10 {
		t.Fatalf("expected 10 results, got %d", len(res.Attributions))
	}
	if got := count(res, domain.ReasonPaid); got != 5 {
		t.Errorf("expected 5 paid, got %d", got)
	}
	if got := count(res, domain.ReasonScarcity); got != 5 {
		t.Errorf("expected 5 scarcity-organic, got %d", got)
	}

	perChannel := map[string]int{}
	for _, r := range res.Attributions {
		if r.IsPaid() {
			perChannel[r.Channel]++
			if r.AcquisitionCost != 10 {
				t.Errorf("expected unit cost 10, got %v", r.AcquisitionCost)
			}
		} else if r.Channel != domain.ChannelOrganic || r.AcquisitionCost != 0 {
			t.Errorf("organic result carries cost: %+v", r)
		}
	}
	if perChannel["A"] != 3 || perChannel["B"] != 2 {
		t.Errorf("expected all inventory consumed (A=3, B=2), got %v", perChannel)
	}
	if avail := inv.Available(day); len(avail) != 0 {
		t.Errorf("expected exhausted inventory, got %v", avail)
	}
}

func TestRun_OrganicFallbackOnEmptyInventory(t *testing.T) {
	inv := inventory.FromExposure(nil)
	m := NewMatcher(inv, newRNG(1), Options{LookbackDays: 2})

	res := m.Run(makeOrders(day, 25))

	for _, r := range res.Attributions {
		if r.Channel != domain.ChannelOrganic || r.AcquisitionCost != 0 || r.Reason != domain.ReasonNoInventory {
			t.Fatalf("expected organic no_inventory, got %+v", r)
		}
	}
	if res.Stats.NoInventory != 25 {
		t.Errorf("expected 25 no_inventory, got %d", res.Stats.NoInventory)
	}
}

func TestRun_ZeroOrdersIsNoop(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{row(day, "A", 10, 5)})
	m := NewMatcher(inv, newRNG(1), Options{})

	res := m.Run(nil)
	if len(res.Attributions) != 0 || len(res.Bookings) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if inv.AvailableFor(day, "A") != 5 {
		t.Error("inventory changed without orders")
	}
}

func TestRun_OrganicShortCircuitSkipsInventory(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{row(day, "A", 10, 5)})
	m := NewMatcher(inv, newRNG(1), Options{OrganicBaseRate: 1})

	res := m.Run(makeOrders(day, 4))
	if res.Stats.OrganicBase != 4 {
		t.Errorf("expected 4 organic_base, got %d", res.Stats.OrganicBase)
	}
	if inv.AvailableFor(day, "A") != 5 {
		t.Error("organic short-circuit must not consume inventory")
	}
}

func TestRun_LookbackWindow(t *testing.T) {
	earlier := domain.AddDays(day, -2)

	build := func() *inventory.Inventory {
		return inventory.FromExposure([]domain.DailyExposure{row(earlier, "A", 10, 5)})
	}

	withWindow := NewMatcher(build(), newRNG(1), Options{Policy: PolicyScarcity, LookbackDays: 2})
	res := withWindow.Run(makeOrders(day, 1))
	// lag-2 weight is 1/3, pool = 5/3 >= 1
	if res.Attributions[0].Reason != domain.ReasonPaid || res.Attributions[0].ClickDateID != earlier {
		t.Errorf("expected paid from %d, got %+v", earlier, res.Attributions[0])
	}

	narrow := NewMatcher(build(), newRNG(1), Options{Policy: PolicyScarcity, LookbackDays: 1})
	res = narrow.Run(makeOrders(day, 1))
	if res.Attributions[0].Reason != domain.ReasonNoInventory {
		t.Errorf("expected no_inventory outside window, got %+v", res.Attributions[0])
	}
}

func TestRun_ConsumesNewestDayFirst(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{
		row(domain.AddDays(day, -1), "A", 10, 10),
		row(day, "A", 20, 10),
	})
	m := NewMatcher(inv, newRNG(1), Options{Policy: PolicyScarcity, LookbackDays: 1})

	res := m.Run(makeOrders(day, 3))
	for _, r := range res.Attributions {
		if r.ClickDateID != day || r.AcquisitionCost != 2 {
			t.Errorf("expected same-day click at cost 2, got %+v", r)
		}
	}
	if inv.AvailableFor(domain.AddDays(day, -1), "A") != 10 {
		t.Error("older inventory consumed while newer was available")
	}
}

func TestRun_WeightedDrawFollowsPool(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{
		row(day, "A", 9000, 9000),
		row(day, "B", 1000, 1000),
	})
	m := NewMatcher(inv, newRNG(99), Options{Policy: PolicyScarcity})

	res := m.Run(makeOrders(day, 1000))
	a := 0
	for _, r := range res.Attributions {
		if r.Channel == "A" {
			a++
		}
	}
	share := float64(a) / 1000
	if math.Abs(share-0.9) > 0.05 {
		t.Errorf("expected ~90%% of draws on A, got %.3f", share)
	}
}

func TestRun_FunnelLossBounces(t *testing.T) {
	inv := inventory.FromExposure([]domain.DailyExposure{row(day, "A", 5000, 5000)})
	m := NewMatcher(inv, newRNG(5), Options{Policy: PolicyFunnelLoss, BaseBurnRate: 1.0})

	if m.BurnRate() != MaxBurnRate {
		t.Fatalf("expected capped burn rate %v, got %v", MaxBurnRate, m.BurnRate())
	}

	res := m.Run(makeOrders(day, 500))
	if res.Stats.Bounced == 0 || res.Stats.Paid == 0 {
		t.Fatalf("expected both bounced and paid orders, got %+v", res.Stats)
	}
	if int64(res.Stats.Bounced+res.Stats.Paid) != res.Stats.ClicksUsed {
		t.Errorf("every drawn click must be consumed: %+v", res.Stats)
	}
	if got := 5000 - inv.AvailableFor(day, "A"); got != res.Stats.ClicksUsed {
		t.Errorf("inventory consumed %d, stats say %d", got, res.Stats.ClicksUsed)
	}

	for _, r := range res.Attributions {
		if r.Reason == domain.ReasonBounced {
			if r.Channel != domain.ChannelOrganic || r.AcquisitionCost != 0 || r.ConsumedChannel != "A" {
				t.Errorf("bounced order malformed: %+v", r)
			}
		}
	}

	// bounced clicks are not booked
	var booked float64
	for _, b := range res.Bookings {
		booked += b.Amount
	}
	if math.Abs(booked-float64(res.Stats.Paid)) > 1e-6 {
		t.Errorf("booked %v, want %d (unit cost 1)", booked, res.Stats.Paid)
	}
}

func TestRun_Deterministic(t *testing.T) {
	rows := []domain.DailyExposure{
		row(domain.AddDays(day, -1), "A", 40, 7),
		row(domain.AddDays(day, -1), "B", 15, 3),
		row(day, "A", 30, 4),
		row(day, "B", 12, 6),
		row(domain.AddDays(day, 1), "A", 22, 2),
	}
	orders := append(makeOrders(day, 12), makeOrders(domain.AddDays(day, 1), 9)...)
	opts := Options{LookbackDays: 2, OrganicBaseRate: 0.2, BaseBurnRate: 0.3}

	a := NewMatcher(inventory.FromExposure(rows), newRNG(42), opts).Run(orders)
	b := NewMatcher(inventory.FromExposure(rows), newRNG(42), opts).Run(orders)

	if !reflect.DeepEqual(a, b) {
		t.Error("same seed and inputs produced different attribution")
	}
}

func TestRun_ConservationAndMonotonicity(t *testing.T) {
	var rows []domain.DailyExposure
	spend := map[int]float64{}
	for i := 0; i < 10; i++ {
		d := domain.AddDays(day, i)
		rows = append(rows, row(d, "A", 50+float64(i), int64(5+i)), row(d, "B", 20, 4))
		spend[d] = 70 + float64(i)
	}
	inv := inventory.FromLagDistribution(rows, dates(day, 10), inventory.TriWeights)
	m := NewMatcher(inv, newRNG(11), Options{BaseBurnRate: 0.2})

	prev := inv.Snapshot()
	var bookings []domain.CostBooking
	for i := 0; i < 10; i++ {
		res := m.Run(makeOrders(domain.AddDays(day, i), 6))
		bookings = append(bookings, res.Bookings...)

		cur := inv.Snapshot()
		for j := range cur {
			if cur[j].Available > prev[j].Available || cur[j].Available < 0 {
				t.Fatalf("entry %d/%s went from %d to %d", cur[j].DateID, cur[j].Channel, prev[j].Available, cur[j].Available)
			}
		}
		prev = cur
	}

	bySpendDate := map[int]float64{}
	for _, b := range bookings {
		bySpendDate[b.SpendDateID] += b.Amount
	}
	for d, booked := range bySpendDate {
		if booked > spend[d]+1e-6 {
			t.Errorf("date %d: booked %v exceeds spend %v", d, booked, spend[d])
		}
	}
}

func TestEffectiveBurnRate(t *testing.T) {
	tests := []struct {
		base, eff, want float64
	}{
		{0.2, 1.0, 0.2},
		{0.4, 0.5, 0.65},
		{0.8, 0.2, 0.9},
		{0.0, 1.5, 0.0},
	}
	for _, tt := range tests {
		if got := EffectiveBurnRate(tt.base, tt.eff); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EffectiveBurnRate(%v, %v) = %v, want %v", tt.base, tt.eff, got, tt.want)
		}
	}
}

func TestOptions_LagWeights(t *testing.T) {
	linear := Options{LookbackDays: 2}.LagWeights()
	if len(linear) != 3 || linear[0] != 1 || linear[1] != 0.5 || math.Abs(linear[2]-1.0/3) > 1e-12 {
		t.Errorf("linear weights = %v", linear)
	}

	tri := Options{LookbackDays: 3, Weighting: WeightingTriWeight}.LagWeights()
	if !reflect.DeepEqual(tri, []float64{0.6, 0.3, 0.1, 0}) {
		t.Errorf("tri weights = %v", tri)
	}

	explicit := Options{LookbackDays: 1, Weights: []float64{1, 0.25, 0.1}}.LagWeights()
	if !reflect.DeepEqual(explicit, []float64{1, 0.25}) {
		t.Errorf("explicit weights = %v", explicit)
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want error
	}{
		{"defaults", Options{}, nil},
		{"bad policy", Options{Policy: "greedy"}, ErrUnknownPolicy},
		{"bad weighting", Options{Weighting: "cubic"}, ErrUnknownWeighting},
		{"negative lookback", Options{LookbackDays: -1}, ErrInvalidLookback},
		{"organic rate above 1", Options{OrganicBaseRate: 1.5}, ErrInvalidRate},
		{"negative burn", Options{BaseBurnRate: -0.1}, ErrInvalidRate},
		{"negative weight", Options{Weights: []float64{1, -1}}, ErrInvalidRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.want == nil && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func dates(start, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = domain.AddDays(start, i)
	}
	return out
}
