package reporting

import (
	"time"

	"causal-commerce-lab/internal/domain"
)

// Report represents the run report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Run         domain.Run

	// Per-channel rollup, in exposure channel order
	Channels []ChannelRow

	// Order outcomes by attribution reason
	Reasons []ReasonRow

	// Observed-data degradation and invariant checks
	DataQuality DataQualitySection

	Reproducibility ReproducibilityMetadata
}

// ChannelRow summarizes one channel over the horizon.
type ChannelRow struct {
	Channel        string
	Spend          float64
	Clicks         int64
	PaidOrders     int
	BouncedOrders  int
	AttributedCost float64
	CPA            float64 // attributed cost per paid order, 0 without paid orders
	Utilization    float64 // attributed cost / spend, 0 without spend
}

// ReasonRow counts orders for one attribution reason.
type ReasonRow struct {
	Reason string
	Orders int
	Share  float64 // orders / total orders
}

// DataQualitySection describes observed-data degradation and invariant checks.
type DataQualitySection struct {
	ObservedAvailable bool // false for reports rebuilt from storage
	Mislabeled        int
	DroppedDays       []int
	Checks            []CheckRow
	AllChecksPassed   bool
}

// CheckRow represents one invariant check.
type CheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// ReproducibilityMetadata identifies how to regenerate the output.
type ReproducibilityMetadata struct {
	GeneratorVersion string
	ConfigHash       string
	DataVersion      string
	ReplayCommand    string
}
