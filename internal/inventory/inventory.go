// Package inventory holds the finite, consumable pool of clicks the
// attribution matcher draws from. An Inventory is rebuilt for every run and
// owned by exactly one matcher.
package inventory

import (
	"errors"
	"fmt"
	"sort"

	"causal-commerce-lab/internal/domain"
)

// Inventory errors
var (
	ErrUnknownEntry = errors.New("no inventory entry")
	ErrInsufficient = errors.New("insufficient clicks")
	ErrInvalidCount = errors.New("consume count must be positive")
)

// TriWeights is the fixed forward lag distribution for lag 0/1/2.
var TriWeights = []float64{0.6, 0.3, 0.1}

// Source is a share of an entry's cost attributed to the day it was spent.
type Source struct {
	SpendDateID int
	Cost        float64
}

// Entry is the click stock of one (date, channel).
type Entry struct {
	DateID    int
	Channel   string
	Produced  int64
	Available int64
	TotalCost float64
	UnitCost  float64
	Sources   []Source
}

type key struct {
	dateID  int
	channel string
}

// Inventory is a (date, channel) indexed set of mutable click counters.
// Not safe for concurrent use.
type Inventory struct {
	entries  map[key]*Entry
	channels []string // first-seen channel order
	rank     map[string]int
}

func newInventory() *Inventory {
	return &Inventory{
		entries: make(map[key]*Entry),
		rank:    make(map[string]int),
	}
}

// FromExposure builds one entry per exposure row with clicks; the unit cost is
// the row's spend per click.
func FromExposure(rows []domain.DailyExposure) *Inventory {
	inv := newInventory()
	for _, r := range rows {
		inv.track(r.Channel)
		if r.RawClicks <= 0 {
			continue
		}
		cost := r.CostPerClick * float64(r.RawClicks)
		inv.add(r.DateID, r.Channel, r.RawClicks, cost, r.DateID)
	}
	inv.finalize()
	return inv
}

// FromLagDistribution spreads each row's clicks forward over the horizon:
// lag i receives floor(clicks*weights[i]) clicks carrying the same per-click
// cost. Clicks landing beyond the last date in horizon are dropped, as is any
// remainder lost to flooring; that cost is never booked and surfaces as waste.
func FromLagDistribution(rows []domain.DailyExposure, horizon []int, weights []float64) *Inventory {
	inv := newInventory()

	index := make(map[int]int, len(horizon))
	for i, d := range horizon {
		index[d] = i
	}

	for _, r := range rows {
		inv.track(r.Channel)
		if r.RawClicks <= 0 {
			continue
		}
		pos, ok := index[r.DateID]
		if !ok {
			continue
		}
		for lag, w := range weights {
			if pos+lag >= len(horizon) {
				break
			}
			lagged := int64(float64(r.RawClicks) * w)
			if lagged <= 0 {
				continue
			}
			inv.add(horizon[pos+lag], r.Channel, lagged, float64(lagged)*r.CostPerClick, r.DateID)
		}
	}
	inv.finalize()
	return inv
}

func (inv *Inventory) track(channel string) {
	if _, ok := inv.rank[channel]; ok {
		return
	}
	inv.rank[channel] = len(inv.channels)
	inv.channels = append(inv.channels, channel)
}

func (inv *Inventory) add(dateID int, channel string, clicks int64, cost float64, spendDateID int) {
	k := key{dateID, channel}
	e, ok := inv.entries[k]
	if !ok {
		e = &Entry{DateID: dateID, Channel: channel}
		inv.entries[k] = e
	}
	e.Produced += clicks
	e.Available += clicks
	e.TotalCost += cost

	for i := range e.Sources {
		if e.Sources[i].SpendDateID == spendDateID {
			e.Sources[i].Cost += cost
			return
		}
	}
	e.Sources = append(e.Sources, Source{SpendDateID: spendDateID, Cost: cost})
}

func (inv *Inventory) finalize() {
	for _, e := range inv.entries {
		if e.Produced > 0 {
			e.UnitCost = e.TotalCost / float64(e.Produced)
		}
		sort.Slice(e.Sources, func(i, j int) bool { return e.Sources[i].SpendDateID < e.Sources[j].SpendDateID })
	}
}

// Channels returns channel names in configuration order.
func (inv *Inventory) Channels() []string {
	out := make([]string, len(inv.channels))
	copy(out, inv.channels)
	return out
}

// Available returns channel -> remaining clicks for the date. Exhausted
// entries are omitted.
func (inv *Inventory) Available(dateID int) map[string]int64 {
	out := make(map[string]int64)
	for _, ch := range inv.channels {
		if e, ok := inv.entries[key{dateID, ch}]; ok && e.Available > 0 {
			out[ch] = e.Available
		}
	}
	return out
}

// AvailableFor returns remaining clicks for one (date, channel); 0 when absent.
func (inv *Inventory) AvailableFor(dateID int, channel string) int64 {
	if e, ok := inv.entries[key{dateID, channel}]; ok {
		return e.Available
	}
	return 0
}

// Consume decrements the (date, channel) counter by n and returns a snapshot
// of the entry after the decrement. Consumption is never undone.
func (inv *Inventory) Consume(dateID int, channel string, n int64) (Entry, error) {
	if n <= 0 {
		return Entry{}, ErrInvalidCount
	}
	e, ok := inv.entries[key{dateID, channel}]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d/%s", ErrUnknownEntry, dateID, channel)
	}
	if e.Available < n {
		return Entry{}, fmt.Errorf("%w: %d/%s has %d, want %d", ErrInsufficient, dateID, channel, e.Available, n)
	}
	e.Available -= n
	return e.clone(), nil
}

// Snapshot returns copies of every entry ordered by date, then channel order.
func (inv *Inventory) Snapshot() []Entry {
	out := make([]Entry, 0, len(inv.entries))
	for _, e := range inv.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateID != out[j].DateID {
			return out[i].DateID < out[j].DateID
		}
		return inv.rank[out[i].Channel] < inv.rank[out[j].Channel]
	})
	return out
}

// Totals returns produced and consumed clicks across the inventory.
func (inv *Inventory) Totals() (produced, consumed int64) {
	for _, e := range inv.entries {
		produced += e.Produced
		consumed += e.Produced - e.Available
	}
	return produced, consumed
}

func (e *Entry) clone() Entry {
	c := *e
	c.Sources = append([]Source(nil), e.Sources...)
	return c
}
