package exclusion

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// EngineVersion is stamped on every decision for audit replay
const EngineVersion = "auto-exclusion/1.0"

// DecisionMetadata describes the evaluation that produced a decision
type DecisionMetadata struct {
	EngineVersion       string        `json:"engine_version"`
	EvaluatedAt         time.Time     `json:"evaluated_at"`
	StrategiesEvaluated int           `json:"strategies_evaluated"`
	StrategiesFailed    []StrategyKey `json:"strategies_failed,omitempty"`
}

// Decision is the arbitrated outcome for one call
type Decision struct {
	CallID          int64            `json:"call_id"`
	ResponseNumber  string           `json:"response_number"`
	IsExcluded      bool             `json:"is_excluded"`
	PrimaryStrategy StrategyKey      `json:"primary_strategy,omitempty"`
	PrimaryReason   string           `json:"primary_reason,omitempty"`
	Results         []StrategyResult `json:"results"`
	Metadata        DecisionMetadata `json:"metadata"`
}

// Primary returns the winning result, or nil when nothing recommends exclusion
func (d Decision) Primary() *StrategyResult {
	if !d.IsExcluded {
		return nil
	}
	for i := range d.Results {
		if d.Results[i].StrategyKey == d.PrimaryStrategy && d.Results[i].ShouldExclude {
			return &d.Results[i]
		}
	}
	return nil
}

// HasRecommendation reports whether any result placed the call in the given band
func (d Decision) HasRecommendation(r Recommendation) bool {
	for _, res := range d.Results {
		if res.Recommendation == r {
			return true
		}
	}
	return false
}

// Arbitrator runs the registered strategies and merges their results.
// Registration order is the tie-breaker between equally confident results.
type Arbitrator struct {
	strategies []Strategy
	now        func() time.Time
}

// NewArbitrator creates an arbitrator with strategies in registration order
func NewArbitrator(strategies ...Strategy) *Arbitrator {
	a := &Arbitrator{now: time.Now}
	for _, s := range strategies {
		a.Register(s)
	}
	return a
}

// WithClock replaces the clock used for EvaluatedAt
func (a *Arbitrator) WithClock(now func() time.Time) *Arbitrator {
	a.now = now
	return a
}

// Register appends a strategy
func (a *Arbitrator) Register(s Strategy) {
	a.strategies = append(a.strategies, s)
	log.Printf("Registered exclusion strategy: %s (position %d)", s.Key(), len(a.strategies))
}

// Strategies returns the registered keys in order
func (a *Arbitrator) Strategies() []StrategyKey {
	keys := make([]StrategyKey, len(a.strategies))
	for i, s := range a.strategies {
		keys[i] = s.Key()
	}
	return keys
}

type strategyOutcome struct {
	result *StrategyResult
	err    error
}

// Evaluate runs every strategy concurrently against the same read-only
// context. A strategy that errors or panics contributes nothing.
func (a *Arbitrator) Evaluate(ctx context.Context, sc *StrategyContext) Decision {
	outcomes := make([]strategyOutcome, len(a.strategies))

	var wg sync.WaitGroup
	for i, s := range a.strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = strategyOutcome{err: fmt.Errorf("panic: %v", r)}
					log.Printf("exclusion strategy %s panicked on call %d: %v\n%s", s.Key(), sc.Call.ID, r, debug.Stack())
				}
			}()
			res, err := s.Evaluate(ctx, sc)
			outcomes[i] = strategyOutcome{result: res, err: err}
		}(i, s)
	}
	wg.Wait()

	decision := Decision{
		CallID:         sc.Call.ID,
		ResponseNumber: sc.Call.ResponseNumber,
		Results:        []StrategyResult{},
		Metadata: DecisionMetadata{
			EngineVersion:       EngineVersion,
			EvaluatedAt:         a.now().UTC(),
			StrategiesEvaluated: len(a.strategies),
		},
	}

	for i, o := range outcomes {
		key := a.strategies[i].Key()
		if o.err != nil {
			log.Printf("exclusion strategy %s failed on call %d: %v", key, sc.Call.ID, o.err)
			decision.Metadata.StrategiesFailed = append(decision.Metadata.StrategiesFailed, key)
			continue
		}
		if o.result == nil {
			continue
		}
		res := *o.result
		if res.StrategyKey == "" {
			res.StrategyKey = key
		}
		decision.Results = append(decision.Results, res)
	}

	flagged := make([]StrategyResult, 0, len(decision.Results))
	for _, res := range decision.Results {
		if res.ShouldExclude {
			flagged = append(flagged, res)
		}
	}
	if len(flagged) > 0 {
		sort.SliceStable(flagged, func(i, j int) bool {
			return flagged[i].Confidence > flagged[j].Confidence
		})
		decision.IsExcluded = true
		decision.PrimaryStrategy = flagged[0].StrategyKey
		decision.PrimaryReason = flagged[0].Reason
	}

	return decision
}
