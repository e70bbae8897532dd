package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/geo"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

const alertsFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "id": "https://api.weather.gov/alerts/urn:oid:1",
      "type": "Feature",
      "geometry": {"type": "Polygon", "coordinates": [[[-92.6,31.2],[-92.3,31.2],[-92.3,31.4],[-92.6,31.4],[-92.6,31.2]]]},
      "properties": {
        "id": "urn:oid:1",
        "areaDesc": "Rapides, LA; Grant, LA",
        "onset": "2025-06-10T12:30:00-05:00",
        "ends": "2025-06-10T14:30:00-05:00",
        "expires": "2025-06-10T14:00:00-05:00",
        "severity": "Severe",
        "event": "Severe Thunderstorm Warning"
      }
    },
    {
      "id": "https://api.weather.gov/alerts/urn:oid:2",
      "type": "Feature",
      "geometry": null,
      "properties": {
        "id": "urn:oid:2",
        "areaDesc": "Avoyelles",
        "onset": null,
        "effective": "2025-06-10T10:00:00-05:00",
        "ends": null,
        "expires": "2025-06-10T20:00:00-05:00",
        "severity": "Catastrophic",
        "event": "Flood Watch"
      }
    },
    {
      "id": "https://api.weather.gov/alerts/urn:oid:3",
      "type": "Feature",
      "geometry": null,
      "properties": {"id": "urn:oid:3", "event": "Special Weather Statement", "severity": "Minor"}
    }
  ]
}`

func TestParseAlerts(t *testing.T) {
	events, err := ParseAlerts([]byte(alertsFixture), "la")
	require.NoError(t, err)
	require.Len(t, events, 2, "alerts without a validity interval are skipped")

	storm := events[0]
	assert.Equal(t, "urn:oid:1", storm.ExternalID)
	assert.Equal(t, "LA", storm.State)
	assert.Equal(t, db.WeatherSeveritySevere, storm.Severity)
	assert.True(t, time.Date(2025, 6, 10, 17, 30, 0, 0, time.UTC).Equal(storm.StartsAt))
	assert.True(t, time.Date(2025, 6, 10, 19, 30, 0, 0, time.UTC).Equal(storm.EndsAt), "ends wins over expires")
	require.True(t, storm.HasGeometry())

	area, err := geo.ParseArea(storm.Geometry)
	require.NoError(t, err)
	assert.True(t, area.Contains(31.31, -92.45))

	flood := events[1]
	assert.False(t, flood.HasGeometry())
	assert.Equal(t, db.WeatherSeverityUnknown, flood.Severity)
	assert.True(t, time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC).Equal(flood.StartsAt), "falls back to effective")
	assert.True(t, time.Date(2025, 6, 11, 1, 0, 0, 0, time.UTC).Equal(flood.EndsAt), "falls back to expires")
}

func TestParseAlerts_Malformed(t *testing.T) {
	_, err := ParseAlerts([]byte(`{"type":`), "LA")
	assert.Error(t, err)
}

func TestClientActiveAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/active", r.URL.Path)
		assert.Equal(t, "LA", r.URL.Query().Get("area"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(alertsFixture))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 50)
	events, err := client.ActiveAlerts(context.Background(), "la")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestClientActiveAlerts_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", 50).ActiveAlerts(context.Background(), "LA")
	assert.ErrorContains(t, err, "status 429")
}

func TestSyncStoresAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(alertsFixture))
	}))
	defer srv.Close()

	store := ledger.NewInMemoryStore()
	ctx := context.Background()
	client := NewClient(srv.URL, "", 50)

	n, err := Sync(ctx, client, store, []string{"LA"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second pull updates rather than duplicates
	_, err = Sync(ctx, client, store, []string{"LA"})
	require.NoError(t, err)

	events, err := store.ListWeatherEvents(ctx, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC), "LA")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
