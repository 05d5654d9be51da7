package domain

// AttributionReason explains how an order received its channel.
type AttributionReason string

const (
	ReasonPaid        AttributionReason = "paid"         // consumed a click and converted
	ReasonOrganicBase AttributionReason = "organic_base" // organic short-circuit
	ReasonNoInventory AttributionReason = "no_inventory" // empty pool for the date
	ReasonScarcity    AttributionReason = "scarcity"     // pool smaller than demand
	ReasonBounced     AttributionReason = "bounced"      // click consumed, funnel lost it
)

// AttributionResult is the ground-truth channel assignment for one order.
type AttributionResult struct {
	RunID           string
	OrderID         string
	DateID          int
	Channel         string // marketing channel or ChannelOrganic / ChannelUnknown
	AcquisitionCost float64
	Reason          AttributionReason

	// Consumed click, set for paid and bounced orders.
	ConsumedChannel string
	ClickDateID     int
}

// IsPaid reports whether the order carries a paid channel attribution.
func (r AttributionResult) IsPaid() bool {
	return r.Reason == ReasonPaid
}

// CostBooking books attributed cost against the day the money was spent.
type CostBooking struct {
	SpendDateID int
	Channel     string
	Amount      float64
}
