package pipeline

import "time"

// Limits is the knob set bounding a single pipeline run. Presets below trade
// coverage against API quota; pick one per deployment tier rather than
// tuning fields individually.
type Limits struct {
	// MaxSearchPages caps how many code-search pages are fetched.
	MaxSearchPages int

	// EnrichCap bounds how many search candidates enter enrichment.
	EnrichCap int

	// BatchSize is the number of repositories per enrichment batch.
	BatchSize int

	// Concurrency is how many enrichment batches run at a time.
	Concurrency int

	// PageDelay is the pause between consecutive search pages.
	PageDelay time.Duration

	// MinStars drops repositories below this star count after enrichment.
	// A repository exactly at the threshold is kept.
	MinStars int

	// DefaultCount is how many results API responses return by default.
	DefaultCount int
}

// DevLimits keeps runs small and serial for local development.
var DevLimits = Limits{
	MaxSearchPages: 1,
	EnrichCap:      20,
	BatchSize:      10,
	Concurrency:    1,
	PageDelay:      100 * time.Millisecond,
	MinStars:       0,
	DefaultCount:   12,
}

// FreeLimits fits within unauthenticated-tier API quotas.
var FreeLimits = Limits{
	MaxSearchPages: 2,
	EnrichCap:      100,
	BatchSize:      50,
	Concurrency:    1,
	PageDelay:      6500 * time.Millisecond,
	MinStars:       5,
	DefaultCount:   12,
}

// PaidLimits assumes an authenticated token with elevated quotas.
var PaidLimits = Limits{
	MaxSearchPages: 5,
	EnrichCap:      250,
	BatchSize:      50,
	Concurrency:    2,
	PageDelay:      4000 * time.Millisecond,
	MinStars:       5,
	DefaultCount:   12,
}

// ProdLimits is the former name of [PaidLimits].
//
// Deprecated: use PaidLimits.
var ProdLimits = PaidLimits

// LimitsFor maps a tier name to its preset, defaulting to FreeLimits for
// anything unrecognized.
func LimitsFor(tier string) Limits {
	switch tier {
	case "dev":
		return DevLimits
	case "paid", "prod":
		return PaidLimits
	default:
		return FreeLimits
	}
}
