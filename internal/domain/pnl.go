package domain

// DailyPnL is the marketing P&L rollup for one date.
// WastedSpend = max(0, TotalSpend - AttributedCost), with sub-cent noise treated as zero.
type DailyPnL struct {
	RunID          string
	DateID         int
	TotalSpend     float64
	AttributedCost float64 // cost booked against this spend date
	WastedSpend    float64
	Orders         int // orders placed on this date
	PaidOrders     int
}

// ItemCost is the acquisition cost allocated to one order item.
type ItemCost struct {
	RunID           string
	OrderID         string
	ItemSeq         int
	DateID          int
	Channel         string
	Price           float64
	GMVShare        float64 // price / order total
	AcquisitionCost float64
}
