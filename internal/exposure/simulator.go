// Package exposure simulates daily channel spend, impressions and clicks.
//
// Two models are supported:
//   - adstock: spend -> impressions (CPM) -> adstock (EWMA) -> saturation -> clicks
//   - cpc: spend -> clicks through a noisy, efficiency-scaled cost per click
//
// Simulation never fails: noise is clipped/floored and every division is guarded.
package exposure

import (
	"math"
	"math/rand/v2"

	"causal-commerce-lab/internal/domain"
)

// Mode selects the click model.
type Mode string

const (
	ModeAdstock Mode = "adstock"
	ModeCPC     Mode = "cpc"
)

const (
	// MinAlpha bounds the adstock smoothing factor away from zero.
	MinAlpha = 0.001

	// SaturationExponent shapes the diminishing-returns curve.
	SaturationExponent = 1.5

	defaultClickNoise = 0.1
)

// Options configures a Simulator.
type Options struct {
	Channels        []domain.Channel
	Mode            Mode
	SpendMultiplier float64 // 0 is treated as 1
	AdEfficiency    float64 // cpc mode only; 0 is treated as 1

	// Optional clip band for the spend noise. Disabled when ClipHigh <= ClipLow.
	ClipLow  float64
	ClipHigh float64

	// Stddev of the click noise (adstock) or cpc noise (cpc). 0 uses 0.1.
	ClickNoise float64

	// Organic effort curve endpoints, linear over the horizon. Zero values use 1 -> 3.
	OrganicCurveStart float64
	OrganicCurveEnd   float64
}

// Simulator turns budgets into daily exposure rows.
type Simulator struct {
	opts Options
}

// NewSimulator creates a Simulator, filling option defaults.
func NewSimulator(opts Options) *Simulator {
	if opts.Mode == "" {
		opts.Mode = ModeAdstock
	}
	if opts.SpendMultiplier <= 0 {
		opts.SpendMultiplier = 1.0
	}
	if opts.AdEfficiency <= 0 {
		opts.AdEfficiency = 1.0
	}
	if opts.ClickNoise <= 0 {
		opts.ClickNoise = defaultClickNoise
	}
	if opts.OrganicCurveStart == 0 && opts.OrganicCurveEnd == 0 {
		opts.OrganicCurveStart, opts.OrganicCurveEnd = 1, 3
	}
	return &Simulator{opts: opts}
}

// Simulate produces one row per (day, channel), ordered by date then channel
// configuration order. Channels are simulated one at a time in configuration
// order; all draws for a channel come from rng before the next channel starts.
func (s *Simulator) Simulate(days []domain.CalendarDay, rng *rand.Rand) []domain.DailyExposure {
	n := len(days)
	if n == 0 || len(s.opts.Channels) == 0 {
		return nil
	}

	series := make([][]domain.DailyExposure, len(s.opts.Channels))
	for i, ch := range s.opts.Channels {
		switch s.opts.Mode {
		case ModeCPC:
			series[i] = s.simulateCPC(ch, days, rng)
		default:
			series[i] = s.simulateAdstock(ch, days, rng)
		}
	}

	rows := make([]domain.DailyExposure, 0, n*len(series))
	for d := 0; d < n; d++ {
		for c := range series {
			rows = append(rows, series[c][d])
		}
	}
	return rows
}

func (s *Simulator) simulateAdstock(ch domain.Channel, days []domain.CalendarDay, rng *rand.Rand) []domain.DailyExposure {
	n := len(days)
	spendNoise := s.drawSpendNoise(ch.Volatility, n, rng)

	spend := make([]float64, n)
	raw := make([]float64, n)
	for i, day := range days {
		if ch.Organic {
			raw[i] = ch.OrganicBaseImpressions * day.SeasonalityFactor * s.organicCurve(i, n)
			continue
		}
		spend[i] = math.Max(0, ch.BaseBudget*s.opts.SpendMultiplier*day.SeasonalityFactor*spendNoise[i])
		if ch.CPM > 0 {
			raw[i] = spend[i] / ch.CPM * 1000
		}
	}

	adstock := Adstock(raw, Alpha(ch.DecayRate))

	clickNoise := normals(1, s.opts.ClickNoise, n, rng)
	rows := make([]domain.DailyExposure, n)
	for i, day := range days {
		eff := Saturation(adstock[i], ch.SaturationCap)
		ectr := ch.BaseClickRate * eff
		clicks := floorClicks(adstock[i] * ectr * clickNoise[i])
		rows[i] = domain.DailyExposure{
			DateID:             day.DateID,
			Channel:            ch.Name,
			Spend:              spend[i],
			Impressions:        raw[i],
			RawClicks:          clicks,
			AdstockValue:       adstock[i],
			EfficiencyFactor:   eff,
			EffectiveClickRate: ectr,
			CostPerClick:       costPerClick(spend[i], clicks),
		}
	}
	return rows
}

func (s *Simulator) simulateCPC(ch domain.Channel, days []domain.CalendarDay, rng *rand.Rand) []domain.DailyExposure {
	n := len(days)
	spendNoise := s.drawSpendNoise(ch.Volatility, n, rng)
	cpcNoise := normals(1, s.opts.ClickNoise, n, rng)

	rows := make([]domain.DailyExposure, n)
	for i, day := range days {
		var spend float64
		if ch.Paid() {
			spend = math.Max(0, ch.BaseBudget*s.opts.SpendMultiplier*day.SeasonalityFactor*spendNoise[i])
		}

		realCPC := ch.CPC / s.opts.AdEfficiency * cpcNoise[i]
		var clicks int64
		if realCPC > 0 {
			clicks = floorClicks(spend / realCPC)
		}

		var impressions float64
		if ch.CPM > 0 {
			impressions = spend / ch.CPM * 1000
		}
		var ectr float64
		if impressions > 0 {
			ectr = float64(clicks) / impressions
		}

		rows[i] = domain.DailyExposure{
			DateID:             day.DateID,
			Channel:            ch.Name,
			Spend:              spend,
			Impressions:        impressions,
			RawClicks:          clicks,
			AdstockValue:       float64(clicks),
			EfficiencyFactor:   s.opts.AdEfficiency,
			EffectiveClickRate: ectr,
			CostPerClick:       costPerClick(spend, clicks),
		}
	}
	return rows
}

func (s *Simulator) drawSpendNoise(volatility float64, n int, rng *rand.Rand) []float64 {
	noise := normals(1, volatility, n, rng)
	if s.opts.ClipHigh > s.opts.ClipLow {
		for i, v := range noise {
			noise[i] = math.Min(s.opts.ClipHigh, math.Max(s.opts.ClipLow, v))
		}
	}
	return noise
}

func (s *Simulator) organicCurve(i, n int) float64 {
	if n <= 1 {
		return s.opts.OrganicCurveStart
	}
	step := (s.opts.OrganicCurveEnd - s.opts.OrganicCurveStart) / float64(n-1)
	return s.opts.OrganicCurveStart + step*float64(i)
}

// Alpha converts a decay rate into the adstock smoothing factor.
func Alpha(decay float64) float64 {
	return math.Max(MinAlpha, 1-decay)
}

// Adstock computes the exponentially weighted carry-over of raw exposure:
// adstock[0] = raw[0]; adstock[t] = alpha*raw[t] + (1-alpha)*adstock[t-1].
func Adstock(raw []float64, alpha float64) []float64 {
	out := make([]float64, len(raw))
	for t, r := range raw {
		if t == 0 {
			out[t] = r
			continue
		}
		out[t] = alpha*r + (1-alpha)*out[t-1]
	}
	return out
}

// Saturation returns the diminishing-returns efficiency 1/(1+(adstock/cap)^1.5).
// A non-positive cap disables saturation.
func Saturation(adstock, capacity float64) float64 {
	if capacity <= 0 || adstock <= 0 {
		return 1.0
	}
	return 1 / (1 + math.Pow(adstock/capacity, SaturationExponent))
}

func normals(mean, stddev float64, n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + stddev*rng.NormFloat64()
	}
	return out
}

func floorClicks(v float64) int64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Floor(v))
}

func costPerClick(spend float64, clicks int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return spend / float64(clicks)
}
