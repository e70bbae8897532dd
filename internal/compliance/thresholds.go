package compliance

import (
	"context"
	"fmt"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

// ThresholdReader loads the contractual thresholds of a parish
type ThresholdReader interface {
	ListZoneThresholds(ctx context.Context, parishID int64) ([]db.ZoneThreshold, error)
	// GetParishSettings returns nil (and no error) when the parish has no settings row
	GetParishSettings(ctx context.Context, parishID int64) (*db.ParishSettings, error)
}

// ParishThresholds is the resolved threshold table of one parish.
// Zone keys are normalized area names.
type ParishThresholds struct {
	ParishID      int64              `json:"parish_id"`
	State         string             `json:"state,omitempty"`
	Zones         map[string]float64 `json:"zones"`
	ParishDefault *float64           `json:"parish_default,omitempty"`
}

// Resolve walks the zone → parish → default chain
func (p *ParishThresholds) Resolve(zoneName string, defaultMinutes float64) (float64, ThresholdSource) {
	if p != nil {
		if minutes, ok := p.Zones[NormalizeAreaName(zoneName)]; ok {
			return minutes, SourceZone
		}
		if p.ParishDefault != nil {
			return *p.ParishDefault, SourceParish
		}
	}
	return defaultMinutes, SourceDefault
}

// ThresholdResolver resolves thresholds through an explicit cache
type ThresholdResolver struct {
	reader         ThresholdReader
	cache          Cache
	defaultMinutes float64
}

// NewThresholdResolver creates a resolver. A zero defaultMinutes falls back to
// db.DefaultThresholdMinutes.
func NewThresholdResolver(reader ThresholdReader, cache Cache, defaultMinutes float64) *ThresholdResolver {
	if defaultMinutes <= 0 {
		defaultMinutes = db.DefaultThresholdMinutes
	}
	if cache == nil {
		cache = NoopCache{}
	}
	return &ThresholdResolver{
		reader:         reader,
		cache:          cache,
		defaultMinutes: defaultMinutes,
	}
}

// DefaultMinutes returns the last-resort threshold
func (r *ThresholdResolver) DefaultMinutes() float64 {
	return r.defaultMinutes
}

// Snapshot returns the parish threshold table, loading it on a cache miss
func (r *ThresholdResolver) Snapshot(ctx context.Context, parishID int64) (*ParishThresholds, error) {
	if cached, ok := r.cache.Get(ctx, parishID); ok {
		return cached, nil
	}

	zones, err := r.reader.ListZoneThresholds(ctx, parishID)
	if err != nil {
		return nil, fmt.Errorf("failed to load zone thresholds: %w", err)
	}
	settings, err := r.reader.GetParishSettings(ctx, parishID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parish settings: %w", err)
	}

	snapshot := &ParishThresholds{
		ParishID: parishID,
		Zones:    make(map[string]float64, len(zones)),
	}
	for _, z := range zones {
		key := NormalizeAreaName(z.ZoneName)
		if key == "" {
			continue
		}
		snapshot.Zones[key] = z.ThresholdMinutes
	}
	if settings != nil {
		snapshot.State = settings.State
		snapshot.ParishDefault = settings.DefaultThresholdMinutes
	}

	r.cache.Set(ctx, parishID, snapshot)
	return snapshot, nil
}

// Resolve returns the threshold for a zone of a parish
func (r *ThresholdResolver) Resolve(ctx context.Context, parishID int64, zoneName string) (float64, ThresholdSource, error) {
	snapshot, err := r.Snapshot(ctx, parishID)
	if err != nil {
		return 0, "", err
	}
	minutes, source := snapshot.Resolve(zoneName, r.defaultMinutes)
	return minutes, source, nil
}

// Invalidate drops the cached table of one parish
func (r *ThresholdResolver) Invalidate(ctx context.Context, parishID int64) {
	r.cache.Invalidate(ctx, parishID)
}

// InvalidateAll drops every cached table
func (r *ThresholdResolver) InvalidateAll(ctx context.Context) {
	r.cache.InvalidateAll(ctx)
}
