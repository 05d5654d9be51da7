// Package config loads and validates simulation run configuration.
//
// A run is described by a difficulty tier plus optional overrides. Files are
// TOML; every key is optional and falls back to Default().
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"causal-commerce-lab/internal/allocation"
	"causal-commerce-lab/internal/attribution"
	"causal-commerce-lab/internal/chaos"
	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/exposure"
	"causal-commerce-lab/internal/seasonality"
)

// ErrInvalidConfig is the root of every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error describes one invalid field. It unwraps to ErrInvalidConfig.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *Error) Unwrap() error {
	return ErrInvalidConfig
}

func invalid(field, format string, args ...any) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Inventory builders
const (
	InventoryDirect = "direct"
	InventoryLagged = "lagged"
)

// DateLayout is the layout of start_date / end_date.
const DateLayout = "2006-01-02"

// Config is the root of a run configuration file.
type Config struct {
	Run         RunConfig         `toml:"run"`
	Market      MarketConfig      `toml:"market"`
	Attribution AttributionConfig `toml:"attribution"`
	Channels    []ChannelConfig   `toml:"channels"`
	Output      OutputConfig      `toml:"output"`
}

// RunConfig selects the tier, seed and horizon.
type RunConfig struct {
	Tier        string  `toml:"tier"`
	Seed        *uint64 `toml:"seed"` // overrides the tier seed
	StartDate   string  `toml:"start_date"`
	EndDate     string  `toml:"end_date"`
	DataQuality string  `toml:"data_quality"` // clean | messy | nightmare, overrides tier chaos
}

// MarketConfig drives the exposure simulator.
type MarketConfig struct {
	Mode            string   `toml:"mode"` // adstock | cpc
	Seasonality     string   `toml:"seasonality"`
	SpendMultiplier *float64 `toml:"spend_multiplier"`
	AdEfficiency    *float64 `toml:"ad_efficiency"`
	ClipLow         float64  `toml:"clip_low"`
	ClipHigh        float64  `toml:"clip_high"`
	ClickNoise      float64  `toml:"click_noise"`
}

// AttributionConfig drives inventory, matching and cost allocation.
type AttributionConfig struct {
	Policy          string    `toml:"policy"`
	Inventory       string    `toml:"inventory"` // direct | lagged
	Weighting       string    `toml:"weighting"`
	Weights         []float64 `toml:"weights"`
	LookbackDays    *int      `toml:"lookback_days"`
	OrganicBaseRate *float64  `toml:"organic_base_rate"`
	BaseBurnRate    *float64  `toml:"base_burn_rate"`
	CostBasis       string    `toml:"cost_basis"`
}

// ChannelConfig is one [[channels]] table.
type ChannelConfig struct {
	Name                   string  `toml:"name"`
	BaseBudget             float64 `toml:"base_budget"`
	CPM                    float64 `toml:"cpm"`
	CPC                    float64 `toml:"cpc"`
	BaseClickRate          float64 `toml:"base_click_rate"`
	SaturationCap          float64 `toml:"saturation_cap"`
	DecayRate              float64 `toml:"decay_rate"`
	Volatility             float64 `toml:"volatility"`
	Organic                bool    `toml:"organic"`
	OrganicBaseImpressions float64 `toml:"organic_base_impressions"`
}

// OutputConfig controls where exports go.
type OutputConfig struct {
	Dir      string `toml:"dir"`
	DWHDir   string `toml:"dwh_dir"`
	S3Bucket string `toml:"s3_bucket"`
	S3Prefix string `toml:"s3_prefix"`
}

// Default returns the medium-tier adstock configuration over 2017-01-01..2018-08-31.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Tier:      domain.TierMedium,
			StartDate: "2017-01-01",
			EndDate:   "2018-08-31",
		},
		Market: MarketConfig{
			Mode:        string(exposure.ModeAdstock),
			Seasonality: seasonality.PolicyDefault,
		},
		Attribution: AttributionConfig{
			Policy:    string(attribution.PolicyFunnelLoss),
			Inventory: InventoryDirect,
			Weighting: string(attribution.WeightingLinear),
			CostBasis: string(allocation.BasisClick),
		},
		Channels: channelConfigs(domain.DefaultChannels()),
		Output: OutputConfig{
			Dir: "output",
		},
	}
}

// Training returns the cpc-mode configuration with lagged inventory and the
// training seasonality calendar. The lag distribution already carries clicks
// forward, so the matcher reads only the current day's stock.
func Training(tier string) *Config {
	cfg := Default()
	cfg.Run.Tier = tier
	cfg.Market.Mode = string(exposure.ModeCPC)
	cfg.Market.Seasonality = seasonality.PolicyTraining
	cfg.Market.ClipLow, cfg.Market.ClipHigh = 0.8, 1.2
	cfg.Attribution.Inventory = InventoryLagged
	cfg.Attribution.Weighting = string(attribution.WeightingLinear)
	noLookback := 0
	cfg.Attribution.LookbackDays = &noLookback
	cfg.Channels = channelConfigs(domain.TrainingChannels())
	return cfg
}

// Load reads a TOML file on top of Default() and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	cfg.Channels = nil
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, path, err)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = channelConfigs(domain.DefaultChannels())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders the configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate checks every field and returns the first *Error found.
func (c *Config) Validate() error {
	if _, ok := domain.DifficultyTiers[c.Run.Tier]; !ok {
		return invalid("run.tier", "unknown difficulty tier %q", c.Run.Tier)
	}
	start, end, err := c.parseDates()
	if err != nil {
		return err
	}
	if end.Before(start) {
		return invalid("run.end_date", "%s is before start_date %s", c.Run.EndDate, c.Run.StartDate)
	}
	if c.Run.DataQuality != "" {
		if _, err := chaos.Quality(c.Run.DataQuality); err != nil {
			return invalid("run.data_quality", "%v", err)
		}
	}

	mode := exposure.Mode(c.Market.Mode)
	if mode != exposure.ModeAdstock && mode != exposure.ModeCPC {
		return invalid("market.mode", "unknown mode %q", c.Market.Mode)
	}
	if _, err := seasonality.Lookup(c.Market.Seasonality); err != nil {
		return invalid("market.seasonality", "%v", err)
	}
	if p := c.Market.SpendMultiplier; p != nil && *p <= 0 {
		return invalid("market.spend_multiplier", "must be > 0, got %v", *p)
	}
	if p := c.Market.AdEfficiency; p != nil && *p <= 0 {
		return invalid("market.ad_efficiency", "must be > 0, got %v", *p)
	}
	if c.Market.ClipHigh > 0 && c.Market.ClipLow > c.Market.ClipHigh {
		return invalid("market.clip_low", "clip band [%v, %v] is inverted", c.Market.ClipLow, c.Market.ClipHigh)
	}
	if c.Market.ClickNoise < 0 {
		return invalid("market.click_noise", "must be >= 0")
	}

	switch c.Attribution.Inventory {
	case InventoryDirect, InventoryLagged:
	default:
		return invalid("attribution.inventory", "unknown inventory builder %q", c.Attribution.Inventory)
	}
	if _, err := allocation.ParseBasis(c.Attribution.CostBasis); err != nil {
		return invalid("attribution.cost_basis", "%v", err)
	}
	d, _ := c.Difficulty()
	opts := c.MatcherOptions(d)
	if err := opts.Validate(); err != nil {
		return invalid("attribution", "%v", err)
	}
	if c.Attribution.Inventory == InventoryLagged {
		if w := opts.LagWeights(); len(w) != 1 || w[0] != 1 {
			return invalid("attribution.lookback_days", "lagged inventory needs a same-day pool at weight 1, got weights %v", w)
		}
	}

	return c.validateChannels(mode)
}

func (c *Config) validateChannels(mode exposure.Mode) error {
	if len(c.Channels) == 0 {
		return invalid("channels", "at least one channel is required")
	}
	seen := make(map[string]bool, len(c.Channels))
	paid := 0
	for i, ch := range c.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		if ch.Name == "" {
			return invalid(field+".name", "must not be empty")
		}
		if ch.Name == domain.ChannelOrganic || ch.Name == domain.ChannelUnknown {
			return invalid(field+".name", "%q is a reserved label", ch.Name)
		}
		if seen[ch.Name] {
			return invalid(field+".name", "duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true

		if ch.BaseBudget < 0 {
			return invalid(field+".base_budget", "negative budget %v", ch.BaseBudget)
		}
		if ch.Volatility < 0 {
			return invalid(field+".volatility", "must be >= 0")
		}
		if ch.DecayRate < 0 || ch.DecayRate > 1 {
			return invalid(field+".decay_rate", "must be within [0, 1]")
		}
		if ch.BaseClickRate < 0 || ch.BaseClickRate > 1 {
			return invalid(field+".base_click_rate", "must be within [0, 1]")
		}
		if ch.SaturationCap < 0 {
			return invalid(field+".saturation_cap", "must be >= 0")
		}
		if ch.Organic {
			if ch.OrganicBaseImpressions < 0 {
				return invalid(field+".organic_base_impressions", "must be >= 0")
			}
			continue
		}

		paid++
		switch mode {
		case exposure.ModeAdstock:
			if ch.BaseBudget > 0 && ch.SaturationCap <= 0 {
				return invalid(field+".saturation_cap", "must be > 0 for a channel with spend")
			}
			if ch.BaseBudget > 0 && ch.CPM <= 0 {
				return invalid(field+".cpm", "must be > 0 for a channel with spend")
			}
		case exposure.ModeCPC:
			if ch.BaseBudget > 0 && ch.CPC <= 0 {
				return invalid(field+".cpc", "must be > 0 for a channel with spend")
			}
		}
	}
	if paid == 0 {
		return invalid("channels", "at least one paid channel is required")
	}
	return nil
}

// Difficulty resolves the tier preset with overrides applied.
func (c *Config) Difficulty() (domain.Difficulty, error) {
	d, ok := domain.DifficultyTiers[c.Run.Tier]
	if !ok {
		return domain.Difficulty{}, invalid("run.tier", "unknown difficulty tier %q", c.Run.Tier)
	}
	if c.Run.Seed != nil {
		d.Seed = *c.Run.Seed
	}
	if c.Market.SpendMultiplier != nil {
		d.SpendMultiplier = *c.Market.SpendMultiplier
	}
	if c.Market.AdEfficiency != nil {
		d.AdEfficiency = *c.Market.AdEfficiency
	}
	if c.Attribution.LookbackDays != nil {
		d.LookbackWindowDays = *c.Attribution.LookbackDays
	} else if c.Attribution.Inventory == InventoryLagged {
		d.LookbackWindowDays = 0
	}
	if c.Attribution.OrganicBaseRate != nil {
		d.OrganicBaseRate = *c.Attribution.OrganicBaseRate
	}
	if c.Attribution.BaseBurnRate != nil {
		d.BaseBurnRate = *c.Attribution.BaseBurnRate
	}
	if c.Run.DataQuality != "" {
		q, err := chaos.Quality(c.Run.DataQuality)
		if err != nil {
			return domain.Difficulty{}, invalid("run.data_quality", "%v", err)
		}
		d.ChaosLevel = q.ChaosLevel
		d.MissingDataProbability = q.MissingDataProbability
	}
	return d, nil
}

// Horizon returns the parsed start and end dates.
func (c *Config) Horizon() (time.Time, time.Time, error) {
	return c.parseDates()
}

func (c *Config) parseDates() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.Run.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("run.start_date", "%v", err)
	}
	end, err := time.Parse(DateLayout, c.Run.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("run.end_date", "%v", err)
	}
	return start, end, nil
}

// DomainChannels converts the channel tables.
func (c *Config) DomainChannels() []domain.Channel {
	out := make([]domain.Channel, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = domain.Channel{
			Name:                   ch.Name,
			BaseBudget:             ch.BaseBudget,
			CPM:                    ch.CPM,
			CPC:                    ch.CPC,
			BaseClickRate:          ch.BaseClickRate,
			SaturationCap:          ch.SaturationCap,
			DecayRate:              ch.DecayRate,
			Volatility:             ch.Volatility,
			Organic:                ch.Organic,
			OrganicBaseImpressions: ch.OrganicBaseImpressions,
		}
	}
	return out
}

// ExposureOptions builds simulator options for a resolved difficulty.
func (c *Config) ExposureOptions(d domain.Difficulty) exposure.Options {
	return exposure.Options{
		Channels:        c.DomainChannels(),
		Mode:            exposure.Mode(c.Market.Mode),
		SpendMultiplier: d.SpendMultiplier,
		AdEfficiency:    d.AdEfficiency,
		ClipLow:         c.Market.ClipLow,
		ClipHigh:        c.Market.ClipHigh,
		ClickNoise:      c.Market.ClickNoise,
	}
}

// MatcherOptions builds attribution options for a resolved difficulty.
func (c *Config) MatcherOptions(d domain.Difficulty) attribution.Options {
	return attribution.Options{
		Policy:          attribution.Policy(c.Attribution.Policy),
		LookbackDays:    d.LookbackWindowDays,
		Weighting:       attribution.Weighting(c.Attribution.Weighting),
		Weights:         c.Attribution.Weights,
		OrganicBaseRate: d.OrganicBaseRate,
		BaseBurnRate:    d.BaseBurnRate,
		AdEfficiency:    d.AdEfficiency,
	}
}

// ChaosOptions builds post-processing options for a resolved difficulty.
func (c *Config) ChaosOptions(d domain.Difficulty) chaos.Options {
	return chaos.Options{
		ChaosLevel:             d.ChaosLevel,
		MissingDataProbability: d.MissingDataProbability,
	}
}

func channelConfigs(chs []domain.Channel) []ChannelConfig {
	out := make([]ChannelConfig, len(chs))
	for i, ch := range chs {
		out[i] = ChannelConfig{
			Name:                   ch.Name,
			BaseBudget:             ch.BaseBudget,
			CPM:                    ch.CPM,
			CPC:                    ch.CPC,
			BaseClickRate:          ch.BaseClickRate,
			SaturationCap:          ch.SaturationCap,
			DecayRate:              ch.DecayRate,
			Volatility:             ch.Volatility,
			Organic:                ch.Organic,
			OrganicBaseImpressions: ch.OrganicBaseImpressions,
		}
	}
	return out
}
