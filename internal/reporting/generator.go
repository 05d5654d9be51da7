package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

// Tables holds the output tables of one run.
type Tables struct {
	Run          domain.Run
	Exposure     []domain.DailyExposure
	Attributions []domain.AttributionResult
	ItemCosts    []domain.ItemCost
	DailyPnL     []domain.DailyPnL

	// Observed copies; nil when the tables were loaded from storage.
	ObservedAttributions []domain.AttributionResult
	ObservedExposure     []domain.DailyExposure
	Mislabeled           int
	DroppedDays          []int
}

// Generator produces reports from run tables.
type Generator struct {
	stores *storage.Stores
	now    func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. stores may be nil when
// reports are only built from in-memory tables.
func NewGenerator(stores *storage.Stores) *Generator {
	return &Generator{
		stores: stores,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report from tables.
func (g *Generator) Generate(t *Tables) *Report {
	return &Report{
		GeneratedAt: g.now(),
		Run:         t.Run,
		Channels:    channelRows(t.Exposure, t.Attributions),
		Reasons:     reasonRows(t.Attributions),
		DataQuality: DataQualitySection{
			ObservedAvailable: t.ObservedAttributions != nil,
			Mislabeled:        t.Mislabeled,
			DroppedDays:       t.DroppedDays,
		},
		Reproducibility: ReproducibilityMetadata{
			ConfigHash: t.Run.ConfigHash,
		},
	}
}

// LoadTables reads the stored tables of a run.
func (g *Generator) LoadTables(ctx context.Context, runID string) (*Tables, error) {
	if g.stores == nil {
		return nil, fmt.Errorf("report generator has no stores")
	}
	run, err := g.stores.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	attrs, err := g.stores.Attribution.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load attribution: %w", err)
	}
	exp, err := g.stores.Exposure.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load exposure: %w", err)
	}
	costs, err := g.stores.ItemCosts.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load item costs: %w", err)
	}
	pnl, err := g.stores.DailyPnL.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load daily pnl: %w", err)
	}

	return &Tables{
		Run:          *run,
		Exposure:     values(exp),
		Attributions: values(attrs),
		ItemCosts:    values(costs),
		DailyPnL:     values(pnl),
	}, nil
}

// GenerateForRun builds a report for a stored run.
func (g *Generator) GenerateForRun(ctx context.Context, runID string) (*Report, error) {
	t, err := g.LoadTables(ctx, runID)
	if err != nil {
		return nil, err
	}
	return g.Generate(t), nil
}

// channelRows rolls exposure and attribution up to channel grain.
func channelRows(exposure []domain.DailyExposure, attrs []domain.AttributionResult) []ChannelRow {
	index := make(map[string]int)
	var rows []ChannelRow
	get := func(ch string) *ChannelRow {
		i, ok := index[ch]
		if !ok {
			i = len(rows)
			index[ch] = i
			rows = append(rows, ChannelRow{Channel: ch})
		}
		return &rows[i]
	}

	for _, e := range exposure {
		r := get(e.Channel)
		r.Spend += e.Spend
		r.Clicks += e.RawClicks
	}
	for _, a := range attrs {
		switch a.Reason {
		case domain.ReasonPaid:
			r := get(a.Channel)
			r.PaidOrders++
			r.AttributedCost += a.AcquisitionCost
		case domain.ReasonBounced:
			if a.ConsumedChannel != "" {
				get(a.ConsumedChannel).BouncedOrders++
			}
		}
	}

	for i := range rows {
		if rows[i].PaidOrders > 0 {
			rows[i].CPA = rows[i].AttributedCost / float64(rows[i].PaidOrders)
		}
		if rows[i].Spend > 0 {
			rows[i].Utilization = rows[i].AttributedCost / rows[i].Spend
		}
	}
	return rows
}

// reasonRows counts orders per reason, most frequent first.
func reasonRows(attrs []domain.AttributionResult) []ReasonRow {
	counts := make(map[string]int)
	for _, a := range attrs {
		counts[string(a.Reason)]++
	}

	rows := make([]ReasonRow, 0, len(counts))
	for reason, n := range counts {
		rows = append(rows, ReasonRow{
			Reason: reason,
			Orders: n,
			Share:  float64(n) / float64(len(attrs)),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Orders != rows[j].Orders {
			return rows[i].Orders > rows[j].Orders
		}
		return rows[i].Reason < rows[j].Reason
	})
	return rows
}

func values[T any](ptrs []*T) []T {
	out := make([]T, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}
