package domain

// DailyExposure is the simulated spend and click output for one (date, channel).
// Corresponds to fact_marketing_daily.
type DailyExposure struct {
	RunID              string
	DateID             int
	Channel            string
	Spend              float64
	Impressions        float64
	RawClicks          int64
	AdstockValue       float64
	EfficiencyFactor   float64 // saturation efficiency in (0, 1]
	EffectiveClickRate float64
	CostPerClick       float64 // spend / raw_clicks, 0 when no clicks
}
