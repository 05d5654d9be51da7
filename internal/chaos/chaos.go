// Package chaos degrades observed copies of run outputs with the data quality
// problems a real marketing warehouse has: pixel loss and missing spend days.
// Ground truth passed in is never modified.
package chaos

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"causal-commerce-lab/internal/domain"
)

// DefaultDroppedDays is the number of exposure days removed when a drop fires.
const DefaultDroppedDays = 5

// Data quality presets, independent of market difficulty.
const (
	QualityClean     = "clean"
	QualityMessy     = "messy"
	QualityNightmare = "nightmare"
)

// ErrUnknownQuality is returned for an unrecognized data quality preset.
var ErrUnknownQuality = errors.New("unknown data quality preset")

// Options controls how much the observed outputs are degraded.
type Options struct {
	ChaosLevel             float64 // probability an order's channel becomes Unknown
	MissingDataProbability float64 // probability the exposure drop fires for the run
	DroppedDays            int     // 0 means DefaultDroppedDays
}

// Quality returns the options for a named data quality preset.
func Quality(name string) (Options, error) {
	switch name {
	case QualityClean:
		return Options{}, nil
	case QualityMessy:
		return Options{ChaosLevel: 0.05, MissingDataProbability: 0.05}, nil
	case QualityNightmare:
		return Options{ChaosLevel: 0.20, MissingDataProbability: 0.15}, nil
	default:
		return Options{}, fmt.Errorf("%w: %s", ErrUnknownQuality, name)
	}
}

// Observed is the degraded view exported as the "observed" tables.
type Observed struct {
	Attributions []domain.AttributionResult
	Exposure     []domain.DailyExposure
	Mislabeled   int
	DroppedDays  []int // ascending
}

// Apply draws the mislabels (one draw per attribution, in input order) and
// then the exposure drop decision. Inputs are copied.
func Apply(rng *rand.Rand, attributions []domain.AttributionResult, exposure []domain.DailyExposure, opts Options) Observed {
	if opts.DroppedDays <= 0 {
		opts.DroppedDays = DefaultDroppedDays
	}

	obs := Observed{
		Attributions: make([]domain.AttributionResult, len(attributions)),
	}
	for i, a := range attributions {
		obs.Attributions[i] = a
		if rng.Float64() < opts.ChaosLevel {
			obs.Attributions[i].Channel = domain.ChannelUnknown
			obs.Mislabeled++
		}
	}

	var dropped map[int]bool
	if rng.Float64() < opts.MissingDataProbability {
		obs.DroppedDays = pickDays(rng, exposure, opts.DroppedDays)
		dropped = make(map[int]bool, len(obs.DroppedDays))
		for _, d := range obs.DroppedDays {
			dropped[d] = true
		}
	}

	obs.Exposure = make([]domain.DailyExposure, 0, len(exposure))
	for _, e := range exposure {
		if dropped[e.DateID] {
			continue
		}
		obs.Exposure = append(obs.Exposure, e)
	}
	return obs
}

// pickDays selects n distinct dates present in exposure.
func pickDays(rng *rand.Rand, exposure []domain.DailyExposure, n int) []int {
	seen := make(map[int]bool)
	var dates []int
	for _, e := range exposure {
		if !seen[e.DateID] {
			seen[e.DateID] = true
			dates = append(dates, e.DateID)
		}
	}
	sort.Ints(dates)
	if n > len(dates) {
		n = len(dates)
	}

	rng.Shuffle(len(dates), func(i, j int) { dates[i], dates[j] = dates[j], dates[i] })
	picked := append([]int(nil), dates[:n]...)
	sort.Ints(picked)
	return picked
}
