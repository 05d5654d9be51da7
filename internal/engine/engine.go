// Package engine runs one seeded simulation pass end to end.
// Flow: calendar → orders → exposure → inventory → attribution → allocation → P&L → chaos → persist
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"causal-commerce-lab/internal/allocation"
	"causal-commerce-lab/internal/attribution"
	"causal-commerce-lab/internal/calendar"
	"causal-commerce-lab/internal/chaos"
	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/exposure"
	"causal-commerce-lab/internal/idhash"
	"causal-commerce-lab/internal/inventory"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/seasonality"
	"causal-commerce-lab/internal/storage"
)

// Engine errors
var (
	ErrNoConfig = errors.New("engine requires a configuration")
	ErrNoStores = errors.New("engine requires stores to run")
)

// Engine coordinates a simulation run.
type Engine struct {
	stores  *storage.Stores
	cfg     *config.Config
	metrics *observability.Metrics
	verbose bool
	clock   func() time.Time

	difficulty domain.Difficulty
	policy     seasonality.Policy
	basis      allocation.Basis
	configHash string
	runID      string
}

// Options for creating an Engine.
type Options struct {
	// Stores are optional for Simulate and required for Run.
	Stores *storage.Stores

	Config  *config.Config
	Metrics *observability.Metrics // defaults to observability.DefaultMetrics
	Verbose bool
}

// New creates an Engine from a validated configuration.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, ErrNoConfig
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	d, err := opts.Config.Difficulty()
	if err != nil {
		return nil, err
	}
	policy, err := seasonality.Lookup(opts.Config.Market.Seasonality)
	if err != nil {
		return nil, err
	}
	basis, err := allocation.ParseBasis(opts.Config.Attribution.CostBasis)
	if err != nil {
		return nil, err
	}
	hash, err := Fingerprint(opts.Config)
	if err != nil {
		return nil, err
	}

	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}

	return &Engine{
		stores:     opts.Stores,
		cfg:        opts.Config,
		metrics:    m,
		verbose:    opts.Verbose,
		clock:      func() time.Time { return time.Now().UTC() },
		difficulty: d,
		policy:     policy,
		basis:      basis,
		configHash: hash,
		runID:      idhash.ComputeRunID(d.Tier, d.Seed, hash),
	}, nil
}

// WithClock sets a custom clock function for deterministic output.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// RunID returns the deterministic id of the configured run.
func (e *Engine) RunID() string {
	return e.runID
}

// Difficulty returns the resolved run parameters.
func (e *Engine) Difficulty() domain.Difficulty {
	return e.difficulty
}

// Fingerprint hashes the simulation-relevant part of a configuration.
// Output locations do not change the run identity.
func Fingerprint(cfg *config.Config) (string, error) {
	c := *cfg
	c.Output = config.OutputConfig{}
	data, err := c.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return idhash.ComputeConfigHash(data), nil
}

// Result holds every table produced by one run.
type Result struct {
	Run          domain.Run
	Calendar     []domain.CalendarDay
	Items        []domain.OrderItem
	Orders       []domain.Order
	Exposure     []domain.DailyExposure
	Attributions []domain.AttributionResult // ground truth
	Bookings     []domain.CostBooking
	ItemCosts    []domain.ItemCost
	DailyPnL     []domain.DailyPnL
	Observed     chaos.Observed
	Inventory    []inventory.Entry // post-run snapshot
	Stats        attribution.Stats
	BurnRate     float64

	ClicksProduced int64
	ClicksConsumed int64

	// Persisted is false when the run_id already existed in the run store.
	Persisted bool
}

// Run loads inputs from the stores, simulates, and persists the outputs.
// A run whose run_id is already stored is recomputed but not written again.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.stores == nil {
		return nil, ErrNoStores
	}
	start := time.Now()
	tier := e.difficulty.Tier

	res, err := e.run(ctx)
	if err != nil {
		e.metrics.RecordRun(tier, "failure", time.Since(start).Seconds())
		return nil, err
	}

	elapsed := time.Since(start).Seconds()
	e.metrics.RecordRun(tier, "success", elapsed)
	e.metrics.LastSuccessfulRun.Set(float64(e.clock().Unix()))
	return res, nil
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	days, items, err := e.Inputs(ctx)
	if err != nil {
		return nil, err
	}

	res, err := e.Simulate(ctx, days, items)
	if err != nil {
		return nil, err
	}

	// Phase 9: Persist
	e.log("Phase 9: Persisting run %s...", res.Run.RunID)
	persisted, err := e.persist(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("phase 9 (persist) failed: %w", err)
	}
	res.Persisted = persisted
	if !persisted {
		e.log("  run %s already stored, skipping writes", res.Run.RunID)
	}

	e.log("Run completed: %d orders, %d paid, spend %.2f, attributed %.2f, wasted %.2f",
		res.Run.Orders, res.Run.PaidOrders, res.Run.TotalSpend, res.Run.AttributedCost, res.Run.WastedSpend)
	return res, nil
}

// Inputs loads the calendar and order items of the configured horizon.
func (e *Engine) Inputs(ctx context.Context) ([]domain.CalendarDay, []domain.OrderItem, error) {
	if e.stores == nil {
		return nil, nil, ErrNoStores
	}

	// Phase 1: Calendar
	e.log("Phase 1: Loading calendar...")
	days, err := e.loadCalendar(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("phase 1 (calendar) failed: %w", err)
	}
	e.log("  %d days (%s..%s)", len(days), domain.FormatDateID(days[0].DateID), domain.FormatDateID(days[len(days)-1].DateID))

	// Phase 2: Orders
	e.log("Phase 2: Loading order items...")
	t := time.Now()
	ptrs, err := e.stores.OrderItems.GetByDateRange(ctx, days[0].DateID, days[len(days)-1].DateID)
	e.metrics.RecordDBQuery("order_items", "get_by_date_range", time.Since(t).Seconds(), err)
	if err != nil {
		return nil, nil, fmt.Errorf("phase 2 (orders) failed: %w", err)
	}
	items := make([]domain.OrderItem, len(ptrs))
	for i, p := range ptrs {
		items[i] = *p
	}
	e.log("  %d items", len(items))
	return days, items, nil
}

// Simulate runs the deterministic pass over the given calendar and items
// without touching storage. The same configuration and inputs always
// produce the same result, apart from Run.CreatedAt.
func (e *Engine) Simulate(ctx context.Context, days []domain.CalendarDay, items []domain.OrderItem) (*Result, error) {
	d := e.difficulty
	rng := rand.New(rand.NewPCG(d.Seed, d.Seed))
	res := &Result{Calendar: days, Items: items}

	// Phase 3: Aggregate orders
	orders, err := allocation.AggregateOrders(items)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (orders) failed: %w", err)
	}
	res.Orders = orders

	// Phase 4: Exposure
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.log("Phase 4: Simulating exposure (%s mode, %d channels)...", e.cfg.Market.Mode, len(e.cfg.Channels))
	t := time.Now()
	sim := exposure.NewSimulator(e.cfg.ExposureOptions(d))
	res.Exposure = sim.Simulate(days, rng)
	e.metrics.RecordPhase("exposure", time.Since(t).Seconds())
	e.log("  %d exposure rows", len(res.Exposure))

	// Phase 5: Inventory
	e.log("Phase 5: Building %s inventory...", e.cfg.Attribution.Inventory)
	var inv *inventory.Inventory
	switch e.cfg.Attribution.Inventory {
	case config.InventoryLagged:
		inv = inventory.FromLagDistribution(res.Exposure, calendar.DateIDs(days), inventory.TriWeights)
	default:
		inv = inventory.FromExposure(res.Exposure)
	}
	produced, _ := inv.Totals()
	e.log("  %d clicks available", produced)

	// Phase 6: Attribution
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.log("Phase 6: Attributing %d orders (%s)...", len(orders), e.cfg.Attribution.Policy)
	t = time.Now()
	matcher := attribution.NewMatcher(inv, rng, e.cfg.MatcherOptions(d))
	matched := matcher.Run(orders)
	e.metrics.RecordPhase("attribution", time.Since(t).Seconds())
	res.Stats = matched.Stats
	res.BurnRate = matcher.BurnRate()
	res.Attributions = matched.Attributions
	res.Bookings = matched.Bookings
	res.ClicksProduced, res.ClicksConsumed = inv.Totals()
	res.Inventory = inv.Snapshot()
	e.log("  paid=%d organic_base=%d no_inventory=%d scarcity=%d bounced=%d",
		res.Stats.Paid, res.Stats.OrganicBase, res.Stats.NoInventory, res.Stats.Scarcity, res.Stats.Bounced)

	if e.basis == allocation.BasisSpendPerOrder {
		res.Attributions, res.Bookings = allocation.SpendPerOrder(res.Exposure, res.Attributions)
	}

	runID := e.runID
	for i := range res.Exposure {
		res.Exposure[i].RunID = runID
	}
	for i := range res.Attributions {
		res.Attributions[i].RunID = runID
	}

	// Phase 7: Allocation and P&L
	e.log("Phase 7: Allocating item costs and daily P&L...")
	t = time.Now()
	res.ItemCosts, err = allocation.AllocateItems(items, res.Attributions)
	if err != nil {
		return nil, fmt.Errorf("phase 7 (allocation) failed: %w", err)
	}
	res.DailyPnL = allocation.DailyPnL(res.Exposure, res.Attributions, res.Bookings)
	for i := range res.DailyPnL {
		res.DailyPnL[i].RunID = runID
	}
	e.metrics.RecordPhase("allocation", time.Since(t).Seconds())

	// Phase 8: Observed copies
	e.log("Phase 8: Applying data quality (chaos=%.2f, missing=%.2f)...", d.ChaosLevel, d.MissingDataProbability)
	res.Observed = chaos.Apply(rng, res.Attributions, res.Exposure, e.cfg.ChaosOptions(d))
	e.log("  %d mislabels, %d dropped days", res.Observed.Mislabeled, len(res.Observed.DroppedDays))

	res.Run = e.summarize(res)
	e.record(res)
	return res, nil
}

func (e *Engine) summarize(res *Result) domain.Run {
	d := e.difficulty
	r := domain.Run{
		RunID:         e.runID,
		Tier:          d.Tier,
		Seed:          d.Seed,
		Policy:        e.cfg.Attribution.Policy,
		InventoryMode: e.cfg.Attribution.Inventory,
		CostBasis:     string(e.basis),
		Orders:        len(res.Attributions),
		ConfigHash:    e.configHash,
		CreatedAt:     e.clock().UnixMilli(),
	}
	if len(res.Calendar) > 0 {
		r.StartDateID = res.Calendar[0].DateID
		r.EndDateID = res.Calendar[len(res.Calendar)-1].DateID
	}
	for _, a := range res.Attributions {
		switch a.Reason {
		case domain.ReasonPaid:
			r.PaidOrders++
		case domain.ReasonBounced:
			r.BouncedOrders++
		}
	}
	for _, x := range res.Exposure {
		r.TotalSpend += x.Spend
	}
	for _, b := range res.Bookings {
		r.AttributedCost += b.Amount
	}
	r.WastedSpend = allocation.Waste(r.TotalSpend, r.AttributedCost)
	return r
}

func (e *Engine) record(res *Result) {
	s := res.Stats
	e.metrics.RecordOrders(map[string]int{
		string(domain.ReasonPaid):        s.Paid,
		string(domain.ReasonOrganicBase): s.OrganicBase,
		string(domain.ReasonNoInventory): s.NoInventory,
		string(domain.ReasonScarcity):    s.Scarcity,
		string(domain.ReasonBounced):     s.Bounced,
	})
	e.metrics.RecordClicks(res.ClicksProduced, res.ClicksConsumed)
	e.metrics.RecordSpend(res.Run.TotalSpend, res.Run.AttributedCost, res.Run.WastedSpend)
	e.metrics.RecordChaos(res.Observed.Mislabeled, len(res.Observed.DroppedDays))
}

// loadCalendar reads the horizon from the calendar store, building and
// storing it when missing. Stored rows are re-annotated with the configured
// seasonality policy.
func (e *Engine) loadCalendar(ctx context.Context) ([]domain.CalendarDay, error) {
	start, end, err := e.cfg.Horizon()
	if err != nil {
		return nil, err
	}
	built, err := calendar.Build(start, end, e.policy)
	if err != nil {
		return nil, err
	}

	t := time.Now()
	stored, err := e.stores.Calendar.GetRange(ctx, domain.DateIDOf(start), domain.DateIDOf(end))
	e.metrics.RecordDBQuery("calendar", "get_range", time.Since(t).Seconds(), err)
	if err != nil {
		return nil, err
	}
	if len(stored) == len(built) {
		rows := make([]domain.CalendarDay, len(stored))
		for i, p := range stored {
			rows[i] = *p
		}
		return calendar.Annotate(rows, e.policy)
	}

	var missing []*domain.CalendarDay
	have := make(map[int]bool, len(stored))
	for _, p := range stored {
		have[p.DateID] = true
	}
	for i := range built {
		if !have[built[i].DateID] {
			missing = append(missing, &built[i])
		}
	}
	if err := e.stores.Calendar.InsertBulk(ctx, missing); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return nil, fmt.Errorf("store calendar: %w", err)
	}
	e.log("  stored %d calendar days", len(missing))
	return built, nil
}

// persist writes the run row first, then the output tables concurrently.
// Returns false when the run already exists.
func (e *Engine) persist(ctx context.Context, res *Result) (bool, error) {
	_, err := e.stores.Runs.GetByID(ctx, res.Run.RunID)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return false, err
	}

	run := res.Run
	if err := e.timed("runs", "insert", func() error { return e.stores.Runs.Insert(ctx, &run) }); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return false, nil
		}
		return false, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.timed("attribution", "insert_bulk", func() error {
			return e.stores.Attribution.InsertBulk(gctx, pointers(res.Attributions))
		})
	})
	g.Go(func() error {
		return e.timed("item_costs", "insert_bulk", func() error {
			return e.stores.ItemCosts.InsertBulk(gctx, pointers(res.ItemCosts))
		})
	})
	g.Go(func() error {
		return e.timed("exposure", "insert_bulk", func() error {
			return e.stores.Exposure.InsertBulk(gctx, pointers(res.Exposure))
		})
	})
	g.Go(func() error {
		return e.timed("daily_pnl", "insert_bulk", func() error {
			return e.stores.DailyPnL.InsertBulk(gctx, pointers(res.DailyPnL))
		})
	})
	if err := g.Wait(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) timed(table, op string, fn func() error) error {
	t := time.Now()
	err := fn()
	e.metrics.RecordDBQuery(table, op, time.Since(t).Seconds(), err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", table, op, err)
	}
	return nil
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}

func (e *Engine) log(format string, args ...any) {
	if e.verbose {
		log.Printf("[engine] "+format, args...)
	}
}
