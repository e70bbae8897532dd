package exclusion

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/geo"
)

const (
	MatchModePolygon  = "polygon"
	MatchModeAreaText = "area_text"
)

// WeatherCandidate is a weather event with its geometry parsed once per batch
type WeatherCandidate struct {
	Event db.WeatherEvent
	Area  *geo.Area // nil when the event has no usable geometry
}

// PrepareWeatherEvents parses geometries and orders events by start time then
// external id, which makes "first matching event" deterministic.
func PrepareWeatherEvents(events []db.WeatherEvent) []WeatherCandidate {
	candidates := make([]WeatherCandidate, 0, len(events))
	for _, ev := range events {
		c := WeatherCandidate{Event: ev}
		if ev.HasGeometry() {
			area, err := geo.ParseArea(ev.Geometry)
			if err != nil {
				log.Printf("weather event %s: ignoring geometry: %v", ev.ExternalID, err)
			} else {
				c.Area = area
			}
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Event, candidates[j].Event
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.Before(b.StartsAt)
		}
		return a.ExternalID < b.ExternalID
	})
	return candidates
}

// WeatherStrategy excludes late calls whose response overlapped a severe
// weather alert covering the incident location.
type WeatherStrategy struct{}

func NewWeatherStrategy() *WeatherStrategy {
	return &WeatherStrategy{}
}

func (s *WeatherStrategy) Key() StrategyKey {
	return StrategyWeather
}

func (s *WeatherStrategy) Evaluate(_ context.Context, sc *StrategyContext) (*StrategyResult, error) {
	settings := sc.Settings.Weather
	if !settings.Enabled {
		return nil, nil
	}

	if !sc.IsOutOfCompliance() {
		return &StrategyResult{
			StrategyKey:    StrategyWeather,
			Recommendation: RecommendNone,
			Reason:         "call met its threshold; weather exclusion not applicable",
		}, nil
	}

	call := sc.Call
	if call.DispatchTime == nil || call.ArrivalTime == nil {
		return &StrategyResult{
			StrategyKey:    StrategyWeather,
			Recommendation: RecommendNone,
			Reason:         "response interval unknown",
		}, nil
	}
	dispatch, arrival := *call.DispatchTime, *call.ArrivalTime

	for _, c := range sc.Weather {
		ev := c.Event
		if !overlaps(ev, dispatch, arrival) {
			continue
		}

		mode, matched := matchEventArea(c, call)
		if mode == "" {
			continue
		}

		start, end := overlapInterval(ev, dispatch, arrival)
		return &StrategyResult{
			StrategyKey:    StrategyWeather,
			ShouldExclude:  true,
			Recommendation: RecommendAutoExclude,
			Reason:         fmt.Sprintf("%s (%s) in effect for %s during response", ev.EventType, ev.Severity, matched),
			Confidence:     settings.Confidence,
			DedupeKey:      "weather:" + ev.ExternalID,
			Metadata: map[string]any{
				"event_id":      ev.ExternalID,
				"event_type":    ev.EventType,
				"severity":      string(ev.Severity),
				"match_mode":    mode,
				"matched_area":  matched,
				"overlap_start": start.UTC().Format(time.RFC3339),
				"overlap_end":   end.UTC().Format(time.RFC3339),
			},
		}, nil
	}

	return &StrategyResult{
		StrategyKey:    StrategyWeather,
		Recommendation: RecommendNone,
		Reason:         "no weather event matched the response window and location",
		Metadata: map[string]any{
			"events_considered": len(sc.Weather),
		},
	}, nil
}

// overlaps treats the event as [starts, ends) and the response as [dispatch, arrival]
func overlaps(ev db.WeatherEvent, dispatch, arrival time.Time) bool {
	return !ev.StartsAt.After(arrival) && ev.EndsAt.After(dispatch)
}

func overlapInterval(ev db.WeatherEvent, dispatch, arrival time.Time) (time.Time, time.Time) {
	start, end := dispatch, arrival
	if ev.StartsAt.After(start) {
		start = ev.StartsAt
	}
	if ev.EndsAt.Before(end) {
		end = ev.EndsAt
	}
	return start, end
}

// matchEventArea returns the match mode and a label for what matched, or an
// empty mode. Events with geometry are matched by containment only; a call
// without coordinates cannot match them.
func matchEventArea(c WeatherCandidate, call db.Call) (string, string) {
	if c.Area != nil {
		if call.Latitude == nil || call.Longitude == nil {
			return "", ""
		}
		if c.Area.Contains(*call.Latitude, *call.Longitude) {
			label := c.Event.AreaDesc
			if label == "" {
				label = fmt.Sprintf("%.4f,%.4f", *call.Latitude, *call.Longitude)
			}
			return MatchModePolygon, label
		}
		return "", ""
	}

	for _, part := range strings.Split(c.Event.AreaDesc, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, place := range []string{call.City, call.ResponseArea} {
			if compliance.AreaContains(part, place) {
				return MatchModeAreaText, part
			}
		}
	}
	return "", ""
}
