// Package attribution matches real orders to simulated clicks.
//
// Days are processed in ascending order. For each day a pool is built from the
// remaining inventory of the day and the previous LookbackDays days, weighted
// by lag. Orders first pass an organic short-circuit, then draw a channel with
// probability proportional to the current pool, consuming one click per draw.
// When the pool holds fewer (weighted) clicks than remaining orders only
// floor(pool) orders are drawn and the rest are organic.
//
// Two policies are supported:
//   - funnel_loss (default): every drawn click may bounce with the effective
//     burn rate; a bounced click is consumed but the order is organic at zero cost.
//   - scarcity: every drawn click converts.
package attribution

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/inventory"
)

// Policy selects the conversion behavior of a drawn click.
type Policy string

const (
	PolicyFunnelLoss Policy = "funnel_loss"
	PolicyScarcity   Policy = "scarcity"
)

// Weighting selects the lag decay used to build the daily pool.
type Weighting string

const (
	WeightingLinear    Weighting = "linear"     // 1/(lag+1)
	WeightingTriWeight Weighting = "tri_weight" // 0.6/0.3/0.1
)

const (
	// MaxBurnRate caps the effective funnel loss.
	MaxBurnRate = 0.90

	// MinPool is the smallest pool total that allows a paid draw.
	MinPool = 1.0
)

// Option errors
var (
	ErrUnknownPolicy    = errors.New("unknown attribution policy")
	ErrUnknownWeighting = errors.New("unknown lag weighting")
	ErrInvalidLookback  = errors.New("lookback window must be >= 0")
	ErrInvalidRate      = errors.New("rate must be within [0, 1]")
)

// Options configures a Matcher.
type Options struct {
	Policy          Policy
	LookbackDays    int
	Weighting       Weighting
	Weights         []float64 // explicit per-lag weights, overrides Weighting
	OrganicBaseRate float64
	BaseBurnRate    float64
	AdEfficiency    float64 // 0 is treated as 1
}

// Validate checks the options without applying defaults.
func (o Options) Validate() error {
	switch o.Policy {
	case "", PolicyFunnelLoss, PolicyScarcity:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, o.Policy)
	}
	switch o.Weighting {
	case "", WeightingLinear, WeightingTriWeight:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownWeighting, o.Weighting)
	}
	if o.LookbackDays < 0 {
		return ErrInvalidLookback
	}
	for name, v := range map[string]float64{
		"organic_base_rate": o.OrganicBaseRate,
		"base_burn_rate":    o.BaseBurnRate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s=%v: %w", name, v, ErrInvalidRate)
		}
	}
	for _, w := range o.Weights {
		if w < 0 {
			return fmt.Errorf("lag weight %v: %w", w, ErrInvalidRate)
		}
	}
	return nil
}

// LagWeights returns the per-lag weights for lags 0..LookbackDays.
func (o Options) LagWeights() []float64 {
	n := o.LookbackDays + 1
	if len(o.Weights) > 0 {
		w := make([]float64, n)
		copy(w, o.Weights)
		return w
	}
	w := make([]float64, n)
	for lag := range w {
		switch o.Weighting {
		case WeightingTriWeight:
			if lag < len(inventory.TriWeights) {
				w[lag] = inventory.TriWeights[lag]
			}
		default:
			w[lag] = 1.0 / float64(lag+1)
		}
	}
	return w
}

// EffectiveBurnRate adds the ad-efficiency penalty to the base burn rate:
// min(0.90, base + (1 - adEfficiency) * 0.5), never below 0.
func EffectiveBurnRate(base, adEfficiency float64) float64 {
	r := base + (1-adEfficiency)*0.5
	return math.Max(0, math.Min(MaxBurnRate, r))
}

// Stats counts outcomes of a run.
type Stats struct {
	Orders        int
	Paid          int
	OrganicBase   int
	NoInventory   int
	Scarcity      int
	Bounced       int
	ClicksUsed    int64
	AttributedSum float64
}

// Result is the output of one matching pass.
type Result struct {
	Attributions []domain.AttributionResult // ordered by date, then order_id
	Bookings     []domain.CostBooking       // ordered by spend date, then channel
	Stats        Stats
}

// Matcher assigns orders to channels by consuming inventory.
// A Matcher owns its inventory and RNG for the duration of one run.
type Matcher struct {
	inv      *inventory.Inventory
	rng      *rand.Rand
	opts     Options
	weights  []float64
	burnRate float64
	channels []string
}

// NewMatcher creates a Matcher. Options are assumed validated.
func NewMatcher(inv *inventory.Inventory, rng *rand.Rand, opts Options) *Matcher {
	if opts.Policy == "" {
		opts.Policy = PolicyFunnelLoss
	}
	if opts.AdEfficiency <= 0 {
		opts.AdEfficiency = 1.0
	}
	m := &Matcher{
		inv:      inv,
		rng:      rng,
		opts:     opts,
		weights:  opts.LagWeights(),
		channels: inv.Channels(),
	}
	if opts.Policy == PolicyFunnelLoss {
		m.burnRate = EffectiveBurnRate(opts.BaseBurnRate, opts.AdEfficiency)
	}
	return m
}

// BurnRate returns the effective bounce probability (0 for the scarcity policy).
func (m *Matcher) BurnRate() float64 {
	return m.burnRate
}

// Run attributes every order exactly once.
func (m *Matcher) Run(orders []domain.Order) *Result {
	byDate := make(map[int][]domain.Order)
	for _, o := range orders {
		byDate[o.DateID] = append(byDate[o.DateID], o)
	}
	dates := make([]int, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Ints(dates)

	res := &Result{Attributions: make([]domain.AttributionResult, 0, len(orders))}
	booked := make(map[bookingKey]float64)

	for _, d := range dates {
		day := byDate[d]
		sort.Slice(day, func(i, j int) bool { return day[i].OrderID < day[j].OrderID })
		m.matchDay(d, day, res, booked)
	}

	sort.SliceStable(res.Attributions, func(i, j int) bool {
		a, b := res.Attributions[i], res.Attributions[j]
		if a.DateID != b.DateID {
			return a.DateID < b.DateID
		}
		return a.OrderID < b.OrderID
	})
	res.Bookings = flattenBookings(booked, m.channelRank())
	res.Stats.Orders = len(res.Attributions)
	return res
}

func (m *Matcher) matchDay(dateID int, orders []domain.Order, res *Result, booked map[bookingKey]float64) {
	var remaining []domain.Order
	for _, o := range orders {
		if m.rng.Float64() < m.opts.OrganicBaseRate {
			res.Attributions = append(res.Attributions, organic(o, domain.ReasonOrganicBase))
			res.Stats.OrganicBase++
			continue
		}
		remaining = append(remaining, o)
	}
	if len(remaining) == 0 {
		return
	}

	pool := m.pool(dateID)
	total := sum(pool)
	if total < MinPool {
		for _, o := range remaining {
			res.Attributions = append(res.Attributions, organic(o, domain.ReasonNoInventory))
			res.Stats.NoInventory++
		}
		return
	}

	nPaid := len(remaining)
	if float64(nPaid) > total {
		nPaid = int(math.Floor(total))
	}

	for i, o := range remaining {
		if i >= nPaid {
			res.Attributions = append(res.Attributions, organic(o, domain.ReasonScarcity))
			res.Stats.Scarcity++
			continue
		}

		ch, ok := m.draw(pool)
		if !ok {
			res.Attributions = append(res.Attributions, organic(o, domain.ReasonNoInventory))
			res.Stats.NoInventory++
			continue
		}
		entry, ok := m.consume(dateID, ch)
		if !ok {
			res.Attributions = append(res.Attributions, organic(o, domain.ReasonNoInventory))
			res.Stats.NoInventory++
			pool = m.pool(dateID)
			continue
		}
		res.Stats.ClicksUsed++

		if m.burnRate > 0 && m.rng.Float64() < m.burnRate {
			r := organic(o, domain.ReasonBounced)
			r.ConsumedChannel = ch
			r.ClickDateID = entry.DateID
			res.Attributions = append(res.Attributions, r)
			res.Stats.Bounced++
		} else {
			res.Attributions = append(res.Attributions, domain.AttributionResult{
				OrderID:         o.OrderID,
				DateID:          o.DateID,
				Channel:         ch,
				AcquisitionCost: entry.UnitCost,
				Reason:          domain.ReasonPaid,
				ConsumedChannel: ch,
				ClickDateID:     entry.DateID,
			})
			res.Stats.Paid++
			res.Stats.AttributedSum += entry.UnitCost
			book(booked, entry)
		}

		pool = m.pool(dateID)
	}
}

// pool sums remaining clicks per channel over the lookback window, weighted by lag.
func (m *Matcher) pool(dateID int) []float64 {
	p := make([]float64, len(m.channels))
	for lag, w := range m.weights {
		if w <= 0 {
			continue
		}
		d := domain.AddDays(dateID, -lag)
		for i, ch := range m.channels {
			if n := m.inv.AvailableFor(d, ch); n > 0 {
				p[i] += float64(n) * w
			}
		}
	}
	return p
}

// draw samples a channel from the cumulative distribution of the current pool.
func (m *Matcher) draw(pool []float64) (string, bool) {
	total := sum(pool)
	if total <= 0 || math.IsNaN(total) {
		return "", false
	}
	u := m.rng.Float64() * total
	var cum float64
	last := -1
	for i, w := range pool {
		if w <= 0 {
			continue
		}
		cum += w
		last = i
		if u < cum {
			return m.channels[i], true
		}
	}
	// u landed on the upper edge through rounding
	if last >= 0 {
		return m.channels[last], true
	}
	return "", false
}

// consume takes one click of the channel from the newest day in the window.
func (m *Matcher) consume(dateID int, channel string) (inventory.Entry, bool) {
	for lag, w := range m.weights {
		if w <= 0 {
			continue
		}
		d := domain.AddDays(dateID, -lag)
		if m.inv.AvailableFor(d, channel) <= 0 {
			continue
		}
		e, err := m.inv.Consume(d, channel, 1)
		if err != nil {
			return inventory.Entry{}, false
		}
		return e, true
	}
	return inventory.Entry{}, false
}

func (m *Matcher) channelRank() map[string]int {
	rank := make(map[string]int, len(m.channels))
	for i, ch := range m.channels {
		rank[ch] = i
	}
	return rank
}

func organic(o domain.Order, reason domain.AttributionReason) domain.AttributionResult {
	return domain.AttributionResult{
		OrderID: o.OrderID,
		DateID:  o.DateID,
		Channel: domain.ChannelOrganic,
		Reason:  reason,
	}
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

type bookingKey struct {
	spendDateID int
	channel     string
}

// book splits one click's unit cost over the spend dates that funded the entry.
func book(booked map[bookingKey]float64, e inventory.Entry) {
	if e.TotalCost <= 0 {
		return
	}
	for _, s := range e.Sources {
		booked[bookingKey{s.SpendDateID, e.Channel}] += e.UnitCost * s.Cost / e.TotalCost
	}
}

func flattenBookings(booked map[bookingKey]float64, rank map[string]int) []domain.CostBooking {
	out := make([]domain.CostBooking, 0, len(booked))
	for k, v := range booked {
		out = append(out, domain.CostBooking{SpendDateID: k.spendDateID, Channel: k.channel, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpendDateID != out[j].SpendDateID {
			return out[i].SpendDateID < out[j].SpendDateID
		}
		return rank[out[i].Channel] < rank[out[j].Channel]
	})
	return out
}
