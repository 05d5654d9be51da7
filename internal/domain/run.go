package domain

// Run is the metadata row of one completed simulation.
type Run struct {
	RunID          string // deterministic hash of config + seed
	Tier           string
	Seed           uint64
	Policy         string // attribution policy
	InventoryMode  string // "direct" | "lagged"
	CostBasis      string
	StartDateID    int
	EndDateID      int
	Orders         int
	PaidOrders     int
	BouncedOrders  int
	TotalSpend     float64
	AttributedCost float64
	WastedSpend    float64
	ConfigHash     string
	CreatedAt      int64 // unix ms
}
