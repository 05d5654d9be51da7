package domain

// Attribution labels that are not marketing channels.
const (
	ChannelOrganic = "Direct/Organic" // never exposed to paid media, or bounced
	ChannelUnknown = "Unknown"        // observed-data mislabel (chaos)
)

// Channel is the static configuration of one marketing channel for a run.
type Channel struct {
	Name          string
	BaseBudget    float64 // daily budget before multipliers
	CPM           float64 // cost per thousand impressions (adstock mode)
	CPC           float64 // cost per click (cpc mode)
	BaseClickRate float64 // click-through rate before saturation
	SaturationCap float64 // adstock at which efficiency halves; 0 disables saturation
	DecayRate     float64 // adstock memory in [0, 1]
	Volatility    float64 // stddev of the multiplicative spend noise

	// Organic channels have no spend; impressions follow an effort curve.
	Organic                bool
	OrganicBaseImpressions float64
}

// Paid reports whether the channel spends money.
func (c Channel) Paid() bool {
	return !c.Organic
}

// IsOrganicLabel reports whether a channel label carries zero acquisition cost by definition.
func IsOrganicLabel(name string) bool {
	return name == ChannelOrganic
}

// DefaultChannels is the market-engine channel mix.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: "Facebook_Ads", BaseBudget: 85, CPM: 12.5, CPC: 0.5, BaseClickRate: 0.009, SaturationCap: 80000, DecayRate: 0.5, Volatility: 0.3},
		{Name: "Google_Search", BaseBudget: 120, CPM: 28.0, CPC: 0.8, BaseClickRate: 0.028, SaturationCap: 40000, DecayRate: 0.2, Volatility: 0.1},
		{Name: "Influencer_Instagram", BaseBudget: 45, CPM: 35.0, CPC: 1.5, BaseClickRate: 0.012, SaturationCap: 100000, DecayRate: 0.8, Volatility: 0.7},
		{Name: "Email_Marketing", BaseBudget: 15, CPM: 2.0, CPC: 0.1, BaseClickRate: 0.035, SaturationCap: 15000, DecayRate: 0.3, Volatility: 0.1},
		{Name: "Organic_SEO", BaseClickRate: 0.05, SaturationCap: 1000000, DecayRate: 0.99, Volatility: 0.05, Organic: true, OrganicBaseImpressions: 5000},
	}
}

// TrainingChannels is the cpc-mode channel mix used with lagged inventory.
func TrainingChannels() []Channel {
	return []Channel{
		{Name: "Facebook", BaseBudget: 2000, CPC: 0.5, Volatility: 0.1},
		{Name: "Google", BaseBudget: 3500, CPC: 0.8, Volatility: 0.1},
		{Name: "Email", BaseBudget: 500, CPC: 0.1, Volatility: 0.1},
		{Name: "Influencer", BaseBudget: 1000, CPC: 1.5, Volatility: 0.1},
	}
}
