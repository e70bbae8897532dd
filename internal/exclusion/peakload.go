package exclusion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
)

const maxPeakLoadConfidence = 0.9

// PeakLoadStrategy excludes late calls that queued behind a surge of calls
// in the same response area.
type PeakLoadStrategy struct{}

func NewPeakLoadStrategy() *PeakLoadStrategy {
	return &PeakLoadStrategy{}
}

func (s *PeakLoadStrategy) Key() StrategyKey {
	return StrategyPeakLoad
}

func (s *PeakLoadStrategy) Evaluate(_ context.Context, sc *StrategyContext) (*StrategyResult, error) {
	settings := sc.Settings.PeakLoad
	if !settings.Enabled {
		return nil, nil
	}

	call := sc.Call
	if call.QueueTime == nil {
		return &StrategyResult{
			StrategyKey:    StrategyPeakLoad,
			Recommendation: RecommendNone,
			Reason:         "queue time unknown",
		}, nil
	}
	area := compliance.NormalizeAreaName(call.ResponseArea)
	if area == "" {
		return &StrategyResult{
			StrategyKey:    StrategyPeakLoad,
			Recommendation: RecommendNone,
			Reason:         "response area unknown",
		}, nil
	}

	window := time.Duration(settings.WindowMinutes) * time.Minute
	queued := *call.QueueTime
	windowStart, windowEnd := queued.Add(-window), queued.Add(window)

	cluster := []db.Call{call}
	for _, sib := range sc.Siblings {
		if sib.ID == call.ID || sib.ParishID != call.ParishID || sib.QueueTime == nil {
			continue
		}
		if sib.QueueTime.Before(windowStart) || sib.QueueTime.After(windowEnd) {
			continue
		}
		if !compliance.AreaNamesMatch(sib.ResponseArea, call.ResponseArea) {
			continue
		}
		cluster = append(cluster, sib)
	}
	sort.SliceStable(cluster, func(i, j int) bool {
		a, b := cluster[i], cluster[j]
		if !a.QueueTime.Equal(*b.QueueTime) {
			return a.QueueTime.Before(*b.QueueTime)
		}
		return a.ID < b.ID
	})

	position := 0
	siblingIDs := make([]int64, 0, len(cluster)-1)
	for i, c := range cluster {
		if c.ID == call.ID {
			position = i + 1
			continue
		}
		siblingIDs = append(siblingIDs, c.ID)
	}
	count := len(cluster)

	metadata := map[string]any{
		"response_area":          call.ResponseArea,
		"window_minutes":         settings.WindowMinutes,
		"window_start":           windowStart.UTC().Format(time.RFC3339),
		"window_end":             windowEnd.UTC().Format(time.RFC3339),
		"calls_in_window":        count,
		"position":               position,
		"auto_exclude_threshold": settings.AutoExcludeThreshold,
		"sibling_call_ids":       siblingIDs,
	}

	confidence := peakLoadConfidence(count, settings.AutoExcludeThreshold)

	switch {
	case position > settings.AutoExcludeThreshold && sc.IsOutOfCompliance():
		return &StrategyResult{
			StrategyKey:    StrategyPeakLoad,
			ShouldExclude:  true,
			Recommendation: RecommendAutoExclude,
			Reason: fmt.Sprintf("call %d of %d queued within %d minutes in %s",
				position, count, settings.WindowMinutes, call.ResponseArea),
			Confidence: confidence,
			DedupeKey:  fmt.Sprintf("peak_load:%s:%d", area, queued.Unix()),
			Metadata:   metadata,
		}, nil
	case count >= settings.EligibleMinimum && count > 1:
		return &StrategyResult{
			StrategyKey:    StrategyPeakLoad,
			Recommendation: RecommendEligible,
			Reason: fmt.Sprintf("%d calls queued within %d minutes in %s; review for peak load",
				count, settings.WindowMinutes, call.ResponseArea),
			Confidence: confidence,
			Metadata:   metadata,
		}, nil
	default:
		return &StrategyResult{
			StrategyKey:    StrategyPeakLoad,
			Recommendation: RecommendNone,
			Reason:         "no concurrent calls in the response area",
			Metadata:       metadata,
		}, nil
	}
}

// peakLoadConfidence grows by 0.1 per call beyond the threshold, capped at 0.9
func peakLoadConfidence(count, threshold int) float64 {
	c := 0.6 + 0.1*float64(count-threshold)
	c = math.Round(c*100) / 100
	return math.Max(0, math.Min(maxPeakLoadConfidence, c))
}
