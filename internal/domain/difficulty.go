package domain

// Difficulty holds the tunable parameters of one simulation run.
type Difficulty struct {
	Tier                   string  // "easy" | "medium" | "hard"
	Seed                   uint64  // PRNG seed for the run
	SpendMultiplier        float64 // global budget multiplier
	AdEfficiency           float64 // 1.0 = nominal CPC, lower is worse
	BaseBurnRate           float64 // funnel loss before the efficiency penalty
	OrganicBaseRate        float64 // probability an order skips paid media entirely
	ChaosLevel             float64 // probability an observed channel is mislabeled
	MissingDataProbability float64 // probability observed exposure loses days
	LookbackWindowDays     int     // prior days contributing to the attribution pool
}

// Difficulty tier constants
const (
	TierEasy   = "easy"
	TierMedium = "medium"
	TierHard   = "hard"
)

// Predefined difficulty tiers.
var (
	DifficultyEasy = Difficulty{
		Tier:                   TierEasy,
		Seed:                   101,
		SpendMultiplier:        1.0,
		AdEfficiency:           1.0,
		BaseBurnRate:           0.2,
		OrganicBaseRate:        0.30,
		ChaosLevel:             0.05,
		MissingDataProbability: 0.01,
		LookbackWindowDays:     2,
	}

	DifficultyMedium = Difficulty{
		Tier:                   TierMedium,
		Seed:                   202,
		SpendMultiplier:        1.5,
		AdEfficiency:           1.0,
		BaseBurnRate:           0.3,
		OrganicBaseRate:        0.20,
		ChaosLevel:             0.15,
		MissingDataProbability: 0.05,
		LookbackWindowDays:     2,
	}

	DifficultyHard = Difficulty{
		Tier:                   TierHard,
		Seed:                   404,
		SpendMultiplier:        2.5,
		AdEfficiency:           0.5,
		BaseBurnRate:           0.4,
		OrganicBaseRate:        0.10,
		ChaosLevel:             0.30,
		MissingDataProbability: 0.10,
		LookbackWindowDays:     2,
	}
)

// DifficultyTiers lists the presets by tier name.
var DifficultyTiers = map[string]Difficulty{
	TierEasy:   DifficultyEasy,
	TierMedium: DifficultyMedium,
	TierHard:   DifficultyHard,
}
