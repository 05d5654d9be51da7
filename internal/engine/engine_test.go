package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"causal-commerce-lab/internal/allocation"
	"causal-commerce-lab/internal/attribution"
	"causal-commerce-lab/internal/calendar"
	"causal-commerce-lab/internal/config"
	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/inventory"
	"causal-commerce-lab/internal/observability"
	"causal-commerce-lab/internal/seasonality"
	"causal-commerce-lab/internal/storage"
	"causal-commerce-lab/internal/storage/memory"
)

var fixedClock = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Run.StartDate = "2017-11-01"
	cfg.Run.EndDate = "2017-12-15"
	return cfg
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsWith(prometheus.NewRegistry(), "test")
}

func newEngine(t *testing.T, cfg *config.Config, stores *storage.Stores) *Engine {
	t.Helper()
	e, err := New(Options{Config: cfg, Stores: stores, Metrics: testMetrics()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e.WithClock(fixedClock)
}

func horizon(t *testing.T, cfg *config.Config) []domain.CalendarDay {
	t.Helper()
	start, end, err := cfg.Horizon()
	if err != nil {
		t.Fatalf("Horizon failed: %v", err)
	}
	policy, _ := seasonality.Lookup(cfg.Market.Seasonality)
	days, err := calendar.Build(start, end, policy)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return days
}

// makeItems creates perDay orders per day; every third order has two items.
func makeItems(days []domain.CalendarDay, perDay int) []domain.OrderItem {
	var items []domain.OrderItem
	for _, d := range days {
		for n := 0; n < perDay; n++ {
			id := fmt.Sprintf("o%d_%03d", d.DateID, n)
			items = append(items, domain.OrderItem{OrderID: id, ItemSeq: 1, DateID: d.DateID, ProductID: "p1", Price: 50 + float64(n), FreightValue: 5})
			if n%3 == 0 {
				items = append(items, domain.OrderItem{OrderID: id, ItemSeq: 2, DateID: d.DateID, ProductID: "p2", Price: 20, FreightValue: 2})
			}
		}
	}
	return items
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoConfig) {
		t.Errorf("expected ErrNoConfig, got %v", err)
	}

	cfg := testConfig()
	cfg.Run.Tier = "legendary"
	if _, err := New(Options{Config: cfg}); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRun_RequiresStores(t *testing.T) {
	e := newEngine(t, testConfig(), nil)
	if _, err := e.Run(context.Background()); !errors.Is(err, ErrNoStores) {
		t.Errorf("expected ErrNoStores, got %v", err)
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	cfg := testConfig()
	days := horizon(t, cfg)
	items := makeItems(days, 20)

	a, err := newEngine(t, cfg, nil).Simulate(context.Background(), days, items)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	b, err := newEngine(t, testConfig(), nil).Simulate(context.Background(), days, items)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	if !reflect.DeepEqual(a.Exposure, b.Exposure) {
		t.Error("exposure differs between identical runs")
	}
	if !reflect.DeepEqual(a.Attributions, b.Attributions) {
		t.Error("attributions differ between identical runs")
	}
	if !reflect.DeepEqual(a.DailyPnL, b.DailyPnL) {
		t.Error("daily P&L differs between identical runs")
	}
	if !reflect.DeepEqual(a.Observed, b.Observed) {
		t.Error("observed data differs between identical runs")
	}
	if a.Run != b.Run {
		t.Errorf("run rows differ: %+v vs %+v", a.Run, b.Run)
	}
}

func TestSimulate_SeedChangesRun(t *testing.T) {
	cfg := testConfig()
	days := horizon(t, cfg)
	items := makeItems(days, 10)

	other := testConfig()
	seed := uint64(999)
	other.Run.Seed = &seed

	a := newEngine(t, cfg, nil)
	b := newEngine(t, other, nil)
	if a.RunID() == b.RunID() {
		t.Fatal("different seeds share a run_id")
	}

	ra, _ := a.Simulate(context.Background(), days, items)
	rb, _ := b.Simulate(context.Background(), days, items)
	if reflect.DeepEqual(ra.Exposure, rb.Exposure) {
		t.Error("different seeds produced identical exposure")
	}
}

func TestFingerprint_IgnoresOutput(t *testing.T) {
	a := testConfig()
	b := testConfig()
	b.Output.Dir = "/tmp/elsewhere"
	b.Output.S3Bucket = "bucket"

	ha, err := Fingerprint(a)
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	hb, _ := Fingerprint(b)
	if ha != hb {
		t.Error("output settings changed the fingerprint")
	}
	if b.Output.Dir != "/tmp/elsewhere" {
		t.Error("Fingerprint mutated its input")
	}
}

func assertConservation(t *testing.T, res *Result) {
	t.Helper()
	const tol = 1e-6

	if len(res.Attributions) != len(res.Orders) {
		t.Fatalf("attributed %d of %d orders", len(res.Attributions), len(res.Orders))
	}
	seen := make(map[string]bool)
	var orderCost float64
	for _, a := range res.Attributions {
		if seen[a.OrderID] {
			t.Fatalf("order %s attributed twice", a.OrderID)
		}
		seen[a.OrderID] = true
		if !a.IsPaid() && a.AcquisitionCost != 0 {
			t.Errorf("non-paid order %s carries cost %v", a.OrderID, a.AcquisitionCost)
		}
		orderCost += a.AcquisitionCost
	}

	var booked float64
	for _, b := range res.Bookings {
		booked += b.Amount
	}
	if math.Abs(orderCost-booked) > tol*math.Max(1, orderCost) {
		t.Errorf("order costs %.6f != booked %.6f", orderCost, booked)
	}
	if res.Run.AttributedCost > res.Run.TotalSpend+tol {
		t.Errorf("attributed %.6f exceeds spend %.6f", res.Run.AttributedCost, res.Run.TotalSpend)
	}

	var daySpend, dayAttributed float64
	for _, p := range res.DailyPnL {
		if p.AttributedCost > p.TotalSpend+tol {
			t.Errorf("date %d: attributed %.6f exceeds spend %.6f", p.DateID, p.AttributedCost, p.TotalSpend)
		}
		if p.WastedSpend < 0 {
			t.Errorf("date %d: negative waste", p.DateID)
		}
		daySpend += p.TotalSpend
		dayAttributed += p.AttributedCost
	}
	if math.Abs(daySpend-res.Run.TotalSpend) > tol*math.Max(1, daySpend) {
		t.Errorf("daily spend %.6f != run spend %.6f", daySpend, res.Run.TotalSpend)
	}
	if math.Abs(dayAttributed-res.Run.AttributedCost) > tol*math.Max(1, dayAttributed) {
		t.Errorf("daily attributed %.6f != run attributed %.6f", dayAttributed, res.Run.AttributedCost)
	}

	byOrder := allocation.OrderCosts(res.ItemCosts)
	for _, a := range res.Attributions {
		if !allocation.Close(byOrder[a.OrderID], a.AcquisitionCost, tol) {
			t.Errorf("order %s: items sum to %v, want %v", a.OrderID, byOrder[a.OrderID], a.AcquisitionCost)
		}
	}
}

func TestSimulate_Conservation(t *testing.T) {
	tests := []struct {
		name   string
		config func() *config.Config
	}{
		{"adstock direct", testConfig},
		{"scarcity policy", func() *config.Config {
			c := testConfig()
			c.Attribution.Policy = "scarcity"
			return c
		}},
		{"spend per order", func() *config.Config {
			c := testConfig()
			c.Attribution.CostBasis = string(allocation.BasisSpendPerOrder)
			return c
		}},
		{"training lagged", func() *config.Config {
			c := config.Training(domain.TierEasy)
			c.Run.StartDate = "2017-11-01"
			c.Run.EndDate = "2017-12-15"
			return c
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			days := horizon(t, cfg)
			res, err := newEngine(t, cfg, nil).Simulate(context.Background(), days, makeItems(days, 25))
			if err != nil {
				t.Fatalf("Simulate failed: %v", err)
			}
			assertConservation(t, res)
		})
	}
}

func TestSimulate_ClickAccounting(t *testing.T) {
	cfg := testConfig()
	days := horizon(t, cfg)
	res, err := newEngine(t, cfg, nil).Simulate(context.Background(), days, makeItems(days, 30))
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	draws := int64(res.Stats.Paid + res.Stats.Bounced)
	if res.ClicksConsumed != draws {
		t.Errorf("consumed %d clicks, want %d", res.ClicksConsumed, draws)
	}
	if res.ClicksConsumed > res.ClicksProduced {
		t.Errorf("consumed %d > produced %d", res.ClicksConsumed, res.ClicksProduced)
	}
	for _, e := range res.Inventory {
		if e.Available < 0 || e.Available > e.Produced {
			t.Errorf("entry %d/%s: available %d of %d", e.DateID, e.Channel, e.Available, e.Produced)
		}
	}
}

// Lagged inventory spreads each day's clicks forward once; the matcher must
// then be able to draw every one of them on the day it lands.
func TestTrainingProfile_LaggedInventoryDrawsEveryClick(t *testing.T) {
	cfg := config.Training(domain.TierEasy)
	d, err := cfg.Difficulty()
	if err != nil {
		t.Fatalf("Difficulty failed: %v", err)
	}
	opts := cfg.MatcherOptions(d)
	if w := opts.LagWeights(); len(w) != 1 || w[0] != 1 {
		t.Fatalf("training pool weights = %v, want [1]", w)
	}
	opts.Policy = attribution.PolicyScarcity
	opts.OrganicBaseRate = 0

	const spendDay = 20171101
	spanned := []int{spendDay, 20171102, 20171103}
	inv := inventory.FromLagDistribution([]domain.DailyExposure{
		{DateID: spendDay, Channel: "Search", Spend: 100, RawClicks: 100, CostPerClick: 1},
	}, spanned, inventory.TriWeights)

	var orders []domain.Order
	for _, dateID := range spanned {
		n := int(inv.AvailableFor(dateID, "Search"))
		for i := 0; i < n; i++ {
			orders = append(orders, domain.Order{OrderID: fmt.Sprintf("o-%d-%03d", dateID, i), DateID: dateID, Price: 50, ItemCount: 1})
		}
	}
	if len(orders) != 100 {
		t.Fatalf("lag distribution produced %d clicks, want 100", len(orders))
	}

	res := attribution.NewMatcher(inv, rand.New(rand.NewPCG(3, 3)), opts).Run(orders)

	if res.Stats.Paid != 100 || res.Stats.Scarcity != 0 {
		t.Errorf("paid=%d scarcity=%d, want every order paid", res.Stats.Paid, res.Stats.Scarcity)
	}
	for _, dateID := range spanned {
		if left := inv.AvailableFor(dateID, "Search"); left != 0 {
			t.Errorf("date %d: %d clicks left over", dateID, left)
		}
	}
	if _, consumed := inv.Totals(); consumed != 100 {
		t.Errorf("consumed %d clicks, want 100", consumed)
	}
}

func TestSimulate_NoOrders(t *testing.T) {
	cfg := testConfig()
	days := horizon(t, cfg)
	res, err := newEngine(t, cfg, nil).Simulate(context.Background(), days, nil)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	if len(res.Attributions) != 0 || res.Run.AttributedCost != 0 {
		t.Errorf("unexpected attribution: %+v", res.Run)
	}
	if res.Run.TotalSpend <= 0 || math.Abs(res.Run.WastedSpend-res.Run.TotalSpend) > 1e-9 {
		t.Errorf("all spend should be waste: %+v", res.Run)
	}
}

func TestRun_PersistsOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	stores := memory.NewStores()

	items := makeItems(horizon(t, cfg), 15)
	if err := stores.OrderItems.InsertBulk(ctx, pointers(items)); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	first, err := newEngine(t, cfg, stores).Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !first.Persisted {
		t.Fatal("first run not persisted")
	}

	run, err := stores.Runs.GetByID(ctx, first.Run.RunID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if *run != first.Run {
		t.Errorf("stored run differs: %+v", run)
	}

	attrs, _ := stores.Attribution.GetByRunID(ctx, first.Run.RunID)
	if len(attrs) != len(first.Attributions) {
		t.Errorf("stored %d attributions, want %d", len(attrs), len(first.Attributions))
	}
	costs, _ := stores.ItemCosts.GetByRunID(ctx, first.Run.RunID)
	if len(costs) != len(items) {
		t.Errorf("stored %d item costs, want %d", len(costs), len(items))
	}
	exp, _ := stores.Exposure.GetByRunID(ctx, first.Run.RunID)
	if len(exp) != len(first.Exposure) {
		t.Errorf("stored %d exposure rows, want %d", len(exp), len(first.Exposure))
	}
	pnl, _ := stores.DailyPnL.GetByRunID(ctx, first.Run.RunID)
	if len(pnl) != len(first.DailyPnL) {
		t.Errorf("stored %d P&L rows, want %d", len(pnl), len(first.DailyPnL))
	}

	// second pass reads the stored calendar and skips writes
	second, err := newEngine(t, testConfig(), stores).Run(ctx)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.Persisted {
		t.Error("second run persisted again")
	}
	if !reflect.DeepEqual(first.Attributions, second.Attributions) {
		t.Error("second run diverged from the first")
	}
	runs, _ := stores.Runs.List(ctx)
	if len(runs) != 1 {
		t.Errorf("expected 1 stored run, got %d", len(runs))
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	days := horizon(t, cfg)
	if _, err := newEngine(t, cfg, nil).Simulate(ctx, days, makeItems(days, 5)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
