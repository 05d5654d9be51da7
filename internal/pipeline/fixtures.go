package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/idhash"
	"causal-commerce-lab/internal/storage"
)

// FixtureOptions shapes the synthetic order stream.
type FixtureOptions struct {
	Seed           uint64
	OrdersPerDay   float64 // mean orders on a day with seasonality factor 1
	MaxItems       int     // items per order, at least 1
	MeanPrice      float64
	Products       int
	DailyNoise     float64 // stddev of the multiplicative daily volume noise
	ExtraItemProb  float64 // probability of each additional item
	FreightPercent float64 // freight as a share of price, upper bound
}

// DefaultFixtureOptions matches the volume of the reference marketplace dataset.
func DefaultFixtureOptions(seed uint64) FixtureOptions {
	return FixtureOptions{
		Seed:           seed,
		OrdersPerDay:   150,
		MaxItems:       4,
		MeanPrice:      120,
		Products:       500,
		DailyNoise:     0.15,
		ExtraItemProb:  0.2,
		FreightPercent: 0.2,
	}
}

// GenerateOrderItems creates a deterministic order stream whose volume follows
// the calendar's seasonality. Order ids are derived from (seed, date, seq).
func GenerateOrderItems(days []domain.CalendarDay, opts FixtureOptions) []domain.OrderItem {
	if opts.MaxItems < 1 {
		opts.MaxItems = 1
	}
	if opts.Products < 1 {
		opts.Products = 1
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	// lognormal with the requested mean
	const sigma = 0.6
	mu := math.Log(math.Max(opts.MeanPrice, 1)) - sigma*sigma/2

	var items []domain.OrderItem
	for _, d := range days {
		volume := opts.OrdersPerDay * d.SeasonalityFactor * (1 + rng.NormFloat64()*opts.DailyNoise)
		n := int(math.Max(0, math.Round(volume)))

		for seq := 0; seq < n; seq++ {
			orderID := idhash.ComputeOrderID(opts.Seed, d.DateID, seq)
			count := 1
			for count < opts.MaxItems && rng.Float64() < opts.ExtraItemProb {
				count++
			}
			for i := 1; i <= count; i++ {
				price := round2(math.Exp(mu + sigma*rng.NormFloat64()))
				items = append(items, domain.OrderItem{
					OrderID:      orderID,
					ItemSeq:      i,
					DateID:       d.DateID,
					ProductID:    fmt.Sprintf("prod_%04d", rng.IntN(opts.Products)),
					Price:        price,
					FreightValue: round2(price * opts.FreightPercent * rng.Float64()),
				})
			}
		}
	}
	return items
}

// LoadFixtures stores generated order items.
func LoadFixtures(ctx context.Context, store storage.OrderItemStore, items []domain.OrderItem) error {
	ptrs := make([]*domain.OrderItem, len(items))
	for i := range items {
		ptrs[i] = &items[i]
	}
	if err := store.InsertBulk(ctx, ptrs); err != nil {
		return fmt.Errorf("load fixtures: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
