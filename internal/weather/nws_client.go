// Package weather pulls severe-weather alerts from an NWS-style GeoJSON feed.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
)

const (
	DefaultFeedURL   = "https://api.weather.gov"
	DefaultUserAgent = "compliance-dashboard (ops@example.com)"
)

// Client reads active alerts. The public feed asks clients to stay well under
// one request per second, so every request goes through the limiter.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a feed client. A zero rps defaults to one request per second.
func NewClient(baseURL, userAgent string, rps float64) *Client {
	if baseURL == "" {
		baseURL = DefaultFeedURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// ActiveAlerts fetches the alerts currently in effect for a state
func (c *Client) ActiveAlerts(ctx context.Context, state string) ([]db.WeatherEvent, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if state != "" {
		q.Set("area", strings.ToUpper(state))
	}
	endpoint := c.baseURL + "/alerts/active"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build alerts request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call alerts feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alerts feed returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return ParseAlerts(body, state)
}

// ParseAlerts converts a GeoJSON FeatureCollection into weather events.
// Features without a usable validity interval are skipped.
func ParseAlerts(body []byte, state string) ([]db.WeatherEvent, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alerts: %w", err)
	}

	events := make([]db.WeatherEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		ev, ok, err := featureToEvent(f, state)
		if err != nil {
			return nil, err
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, nil
}

func featureToEvent(f *geojson.Feature, state string) (db.WeatherEvent, bool, error) {
	props := f.Properties

	id := props.MustString("id", "")
	if id == "" {
		if s, ok := f.ID.(string); ok {
			id = s
		}
	}
	if id == "" {
		return db.WeatherEvent{}, false, nil
	}

	starts := firstTime(props, "onset", "effective")
	ends := firstTime(props, "ends", "expires")
	if starts == nil || ends == nil || !ends.After(*starts) {
		return db.WeatherEvent{}, false, nil
	}

	ev := db.WeatherEvent{
		ExternalID: id,
		State:      strings.ToUpper(state),
		EventType:  props.MustString("event", ""),
		Severity:   severity(props.MustString("severity", "")),
		AreaDesc:   props.MustString("areaDesc", ""),
		StartsAt:   starts.UTC(),
		EndsAt:     ends.UTC(),
	}

	switch f.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		raw, err := json.Marshal(geojson.NewGeometry(f.Geometry))
		if err != nil {
			return db.WeatherEvent{}, false, fmt.Errorf("failed to encode geometry of %s: %w", id, err)
		}
		ev.Geometry = raw
	}

	return ev, true, nil
}

func firstTime(props geojson.Properties, keys ...string) *time.Time {
	for _, k := range keys {
		s := props.MustString(k, "")
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
	}
	return nil
}

func severity(s string) db.WeatherSeverity {
	switch db.WeatherSeverity(s) {
	case db.WeatherSeverityMinor, db.WeatherSeverityModerate, db.WeatherSeveritySevere, db.WeatherSeverityExtreme:
		return db.WeatherSeverity(s)
	default:
		return db.WeatherSeverityUnknown
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
