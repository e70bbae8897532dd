package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

type fakeThresholdReader struct {
	zones    []db.ZoneThreshold
	settings *db.ParishSettings
	err      error
	loads    int
}

func (f *fakeThresholdReader) ListZoneThresholds(_ context.Context, _ int64) ([]db.ZoneThreshold, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return f.zones, nil
}

func (f *fakeThresholdReader) GetParishSettings(_ context.Context, _ int64) (*db.ParishSettings, error) {
	return f.settings, nil
}

func TestThresholdResolver_FallbackChain(t *testing.T) {
	parishDefault := 12.0
	reader := &fakeThresholdReader{
		zones: []db.ZoneThreshold{
			{ParishID: 1, ZoneName: "Zone A", ThresholdMinutes: 8},
			{ParishID: 1, ZoneName: "5 Mile Ring", ThresholdMinutes: 5},
		},
		settings: &db.ParishSettings{ParishID: 1, State: "LA", DefaultThresholdMinutes: &parishDefault},
	}
	r := NewThresholdResolver(reader, NewMemoryCache(time.Minute), 0)
	ctx := context.Background()

	minutes, source, err := r.Resolve(ctx, 1, "  zone a ")
	require.NoError(t, err)
	assert.Equal(t, 8.0, minutes)
	assert.Equal(t, SourceZone, source)

	minutes, source, err = r.Resolve(ctx, 1, "5MI ring")
	require.NoError(t, err)
	assert.Equal(t, 5.0, minutes)
	assert.Equal(t, SourceZone, source)

	minutes, source, err = r.Resolve(ctx, 1, "Zone Z")
	require.NoError(t, err)
	assert.Equal(t, 12.0, minutes)
	assert.Equal(t, SourceParish, source)
}

func TestThresholdResolver_DefaultWhenNothingConfigured(t *testing.T) {
	r := NewThresholdResolver(&fakeThresholdReader{}, nil, 0)

	minutes, source, err := r.Resolve(context.Background(), 7, "anything")
	require.NoError(t, err)
	assert.Equal(t, db.DefaultThresholdMinutes, minutes)
	assert.Equal(t, SourceDefault, source)
}

func TestThresholdResolver_CachesUntilInvalidated(t *testing.T) {
	reader := &fakeThresholdReader{zones: []db.ZoneThreshold{{ParishID: 1, ZoneName: "A", ThresholdMinutes: 8}}}
	r := NewThresholdResolver(reader, NewMemoryCache(time.Minute), 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := r.Resolve(ctx, 1, "A")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reader.loads, "batch lookups should hit the cache")

	r.Invalidate(ctx, 1)
	_, _, err := r.Resolve(ctx, 1, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.loads)

	r.InvalidateAll(ctx)
	_, _, err = r.Resolve(ctx, 1, "A")
	require.NoError(t, err)
	assert.Equal(t, 3, reader.loads)
}

func TestThresholdResolver_ReaderError(t *testing.T) {
	r := NewThresholdResolver(&fakeThresholdReader{err: errors.New("db down")}, nil, 0)

	_, _, err := r.Resolve(context.Background(), 1, "A")
	assert.Error(t, err)
}

func TestMemoryCache_Expires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache(60 * time.Second)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	c.Set(ctx, 1, &ParishThresholds{ParishID: 1})
	_, ok := c.Get(ctx, 1)
	assert.True(t, ok)

	now = now.Add(59 * time.Second)
	_, ok = c.Get(ctx, 1)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, 1)
	assert.False(t, ok, "entry must expire at the TTL")
}
