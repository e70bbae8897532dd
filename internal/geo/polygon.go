// Package geo answers point-in-polygon questions for alert geometries.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

var ErrUnsupportedGeometry = errors.New("geometry must be a Polygon or MultiPolygon")

// Area is a parsed alert footprint
type Area struct {
	geometry orb.Geometry
	bound    orb.Bound
}

// ParseArea decodes a GeoJSON Polygon or MultiPolygon. A Feature wrapper is
// accepted and unwrapped.
func ParseArea(raw json.RawMessage) (*Area, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrUnsupportedGeometry
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("invalid geojson: %w", err)
	}

	var g orb.Geometry
	if probe.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid geojson feature: %w", err)
		}
		g = f.Geometry
	} else {
		geom, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid geojson geometry: %w", err)
		}
		g = geom.Geometry()
	}

	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, ErrUnsupportedGeometry
	}
	return &Area{geometry: g, bound: g.Bound()}, nil
}

// Contains reports whether the WGS84 point lies inside the area
func (a *Area) Contains(lat, lng float64) bool {
	if a == nil {
		return false
	}
	p := orb.Point{lng, lat}
	if !a.bound.Contains(p) {
		return false
	}
	switch g := a.geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}
