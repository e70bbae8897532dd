// Package compliance classifies response times against contractual thresholds.
package compliance

import (
	"math"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

// GraceMinutes is the "X:59" tolerance: a threshold of T minutes accepts
// responses up to and including T minutes 59 seconds.
const GraceMinutes = 59.0 / 60.0

// ThresholdSource records which level of the fallback chain produced a threshold
type ThresholdSource string

const (
	SourceZone    ThresholdSource = "zone"
	SourceParish  ThresholdSource = "parish"
	SourceDefault ThresholdSource = "default"
)

// Classification is the compliance verdict for one call
type Classification struct {
	ResponseTimeMinutes *float64        `json:"response_time_minutes"`
	ThresholdMinutes    float64         `json:"threshold_minutes"`
	ThresholdSource     ThresholdSource `json:"threshold_source"`
	IsOutOfCompliance   *bool           `json:"is_out_of_compliance"`
}

// ResponseTimeMinutes returns arrival minus dispatch in minutes, or nil when
// either timestamp is missing or the arrival precedes the dispatch.
func ResponseTimeMinutes(dispatch, arrival *time.Time) *float64 {
	if dispatch == nil || arrival == nil {
		return nil
	}
	d := arrival.Sub(*dispatch)
	if d < 0 {
		return nil
	}
	minutes := d.Minutes()
	return &minutes
}

// IsOutOfCompliance applies the X:59 rule. A nil response time yields nil
// (unknown), never compliant.
func IsOutOfCompliance(responseTimeMinutes *float64, thresholdMinutes float64) *bool {
	if responseTimeMinutes == nil || math.IsNaN(*responseTimeMinutes) {
		return nil
	}
	out := *responseTimeMinutes > thresholdMinutes+GraceMinutes
	return &out
}

// Classify computes the response time of a call and its verdict against the
// resolved threshold.
func Classify(call db.Call, thresholdMinutes float64, source ThresholdSource) Classification {
	rt := ResponseTimeMinutes(call.DispatchTime, call.ArrivalTime)
	return Classification{
		ResponseTimeMinutes: rt,
		ThresholdMinutes:    thresholdMinutes,
		ThresholdSource:     source,
		IsOutOfCompliance:   IsOutOfCompliance(rt, thresholdMinutes),
	}
}

// Apply copies the classification onto the call's derived fields
func (c Classification) Apply(call *db.Call) {
	call.ResponseTimeMinutes = c.ResponseTimeMinutes
	threshold := c.ThresholdMinutes
	call.ThresholdMinutes = &threshold
	call.IsOutOfCompliance = c.IsOutOfCompliance
}
