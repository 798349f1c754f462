package audit

// UnknownTierPolicy controls what happens to hours tagged with a tier outside
// the five known ones.
type UnknownTierPolicy int

const (
	// UnknownTierIgnore drops the hours entirely.
	UnknownTierIgnore UnknownTierPolicy = iota
	// UnknownTierSenior buckets the hours as senior.
	UnknownTierSenior
)

// RateStrategy controls how delegated tiers are priced.
type RateStrategy int

const (
	// BlendedRates prices senior and junior work at the average of their
	// engineering and business rates.
	BlendedRates RateStrategy = iota
	// VerticalRates picks the engineering or business rate from each event's
	// vertical and blends only for universal work.
	VerticalRates
)

func (s RateStrategy) String() string {
	if s == VerticalRates {
		return "vertical"
	}
	return "blended"
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithUnknownTierPolicy sets the unknown tier policy.
func WithUnknownTierPolicy(p UnknownTierPolicy) Option {
	return func(e *Engine) {
		e.unknownTier = p
	}
}

// WithRateStrategy sets the delegated rate strategy.
func WithRateStrategy(s RateStrategy) Option {
	return func(e *Engine) {
		e.strategy = s
	}
}
