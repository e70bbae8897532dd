// Package exclusion decides whether a late call may be excluded from
// compliance reporting. Strategies are pure evaluators over a read-only
// context; the Arbitrator runs them and picks the winning reason.
package exclusion

import (
	"context"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
)

// StrategyKey identifies a strategy in results and audit rows
type StrategyKey string

const (
	StrategyWeather  StrategyKey = "WEATHER"
	StrategyPeakLoad StrategyKey = "PEAK_CALL_LOAD"
)

// Recommendation is the band a strategy places a call in
type Recommendation string

const (
	RecommendAutoExclude Recommendation = "AUTO_EXCLUDE"
	RecommendEligible    Recommendation = "ELIGIBLE" // flag for human review only
	RecommendNone        Recommendation = "NONE"
)

// StrategyResult is the opinion of one strategy about one call
type StrategyResult struct {
	StrategyKey    StrategyKey    `json:"strategy_key"`
	ShouldExclude  bool           `json:"should_exclude"`
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"`
	Confidence     float64        `json:"confidence"`
	DedupeKey      string         `json:"dedupe_key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// WeatherSettings configures the weather matcher
type WeatherSettings struct {
	Enabled    bool    `json:"enabled"`
	Confidence float64 `json:"confidence"`
}

// PeakLoadSettings configures the peak call load matcher
type PeakLoadSettings struct {
	Enabled              bool `json:"enabled"`
	WindowMinutes        int  `json:"window_minutes"`
	AutoExcludeThreshold int  `json:"auto_exclude_threshold"`
	EligibleMinimum      int  `json:"eligible_minimum"`
}

// Settings is the per-strategy configuration carried in every context
type Settings struct {
	Weather  WeatherSettings  `json:"weather"`
	PeakLoad PeakLoadSettings `json:"peak_load"`
}

// DefaultSettings enables every strategy with its stock tuning
func DefaultSettings() Settings {
	return Settings{
		Weather: WeatherSettings{
			Enabled:    true,
			Confidence: 0.95,
		},
		PeakLoad: PeakLoadSettings{
			Enabled:              true,
			WindowMinutes:        45,
			AutoExcludeThreshold: 3,
			EligibleMinimum:      2,
		},
	}
}

// StrategyContext is the read-only input of one evaluation. Strategies must
// not mutate it and must not perform I/O; everything they need is preloaded.
type StrategyContext struct {
	Call       db.Call
	Compliance compliance.Classification
	Settings   Settings

	// Weather events overlapping the evaluation window, parsed and ordered
	Weather []WeatherCandidate

	// Calls of the same parish around the call's queue time (may include the call)
	Siblings []db.Call
}

// IsOutOfCompliance is true only when the classifier marked the call late
func (sc *StrategyContext) IsOutOfCompliance() bool {
	return sc.Compliance.IsOutOfCompliance != nil && *sc.Compliance.IsOutOfCompliance
}

// Strategy is one independent exclusion rule.
// Evaluate returns nil to opt out (e.g. administratively disabled).
type Strategy interface {
	Key() StrategyKey
	Evaluate(ctx context.Context, sc *StrategyContext) (*StrategyResult, error)
}
