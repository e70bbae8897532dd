package db

import (
	"encoding/json"
	"time"
)

// ===========================
// CALL MODELS
// ===========================

// ExclusionType marks how a call was removed from the compliance denominator
type ExclusionType string

const (
	ExclusionNone   ExclusionType = ""
	ExclusionManual ExclusionType = "MANUAL"
	ExclusionAuto   ExclusionType = "AUTO"
)

// Call is one emergency response record
type Call struct {
	ID             int64  `json:"id"`
	ResponseNumber string `json:"response_number"` // Business key, unique
	ParishID       int64  `json:"parish_id"`
	RegionID       *int64 `json:"region_id,omitempty"`
	ResponseArea   string `json:"response_area"` // Zone name, free text
	City           string `json:"city,omitempty"`

	// Origin point of the call (WGS84)
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// Timeline
	QueueTime    *time.Time `json:"queue_time,omitempty"`
	DispatchTime *time.Time `json:"dispatch_time,omitempty"`
	ArrivalTime  *time.Time `json:"arrival_time,omitempty"`

	// Derived compliance
	ResponseTimeMinutes *float64 `json:"response_time_minutes,omitempty"`
	ThresholdMinutes    *float64 `json:"threshold_minutes,omitempty"`
	IsOutOfCompliance   *bool    `json:"is_out_of_compliance"` // null = unknown

	// Exclusion state, mutated only through the exclusion ledger
	ExclusionType     ExclusionType  `json:"exclusion_type,omitempty"`
	ExclusionReason   string         `json:"exclusion_reason,omitempty"`
	ExclusionStrategy string         `json:"exclusion_strategy,omitempty"`
	ExcludedAt        *time.Time     `json:"excluded_at,omitempty"`
	ExcludedBy        string         `json:"excluded_by,omitempty"`
	ExclusionMetadata map[string]any `json:"exclusion_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExcluded reports whether the call currently carries any exclusion
func (c Call) IsExcluded() bool {
	return c.ExclusionType != ExclusionNone
}

// CallExclusion is the set of exclusion fields written onto a call
type CallExclusion struct {
	Type     ExclusionType
	Reason   string
	Strategy string
	By       string
	At       time.Time
	Metadata map[string]any
}

// CallFilter selects calls for batch evaluation
type CallFilter struct {
	ParishID      int64
	From          *time.Time     // inclusive, on queue time
	To            *time.Time     // exclusive, on queue time
	ExclusionType *ExclusionType // nil matches any state; ExclusionNone selects unexcluded calls
}

// ===========================
// THRESHOLD MODELS
// ===========================

// DefaultThresholdMinutes applies when neither a zone nor a parish threshold is configured
const DefaultThresholdMinutes = 10.0

// ZoneThreshold maps a parish response area to its contractual threshold
type ZoneThreshold struct {
	ParishID         int64   `json:"parish_id"`
	ZoneName         string  `json:"zone_name"`
	ThresholdMinutes float64 `json:"threshold_minutes"`
}

// ParishSettings carries the parish-level fallback threshold
type ParishSettings struct {
	ParishID                int64    `json:"parish_id"`
	Name                    string   `json:"name"`
	State                   string   `json:"state,omitempty"` // Two-letter state used to scope weather alerts
	DefaultThresholdMinutes *float64 `json:"default_threshold_minutes,omitempty"`
}

// ===========================
// WEATHER MODELS
// ===========================

// WeatherSeverity follows the severity vocabulary of public alert feeds
type WeatherSeverity string

const (
	WeatherSeverityMinor    WeatherSeverity = "Minor"
	WeatherSeverityModerate WeatherSeverity = "Moderate"
	WeatherSeveritySevere   WeatherSeverity = "Severe"
	WeatherSeverityExtreme  WeatherSeverity = "Extreme"
	WeatherSeverityUnknown  WeatherSeverity = "Unknown"
)

// WeatherEvent is a severe-weather alert supplied by an external feed.
// Validity interval is [StartsAt, EndsAt).
type WeatherEvent struct {
	ExternalID string          `json:"external_id"`
	State      string          `json:"state"`
	EventType  string          `json:"event_type"` // e.g. "Severe Thunderstorm Warning"
	Severity   WeatherSeverity `json:"severity"`
	AreaDesc   string          `json:"area_desc"` // Semicolon-delimited place names
	StartsAt   time.Time       `json:"starts_at"`
	EndsAt     time.Time       `json:"ends_at"`
	Geometry   json.RawMessage `json:"geometry,omitempty"` // GeoJSON Polygon or MultiPolygon
}

// HasGeometry reports whether the event carries a usable polygon
func (e WeatherEvent) HasGeometry() bool {
	return len(e.Geometry) > 0 && string(e.Geometry) != "null"
}

// ===========================
// EXCLUSION LEDGER MODELS
// ===========================

// Ledger entry actions
const (
	LedgerActionExclude   = "exclude"
	LedgerActionUnexclude = "unexclude"
)

// ExclusionLogEntry is one append-only audit row
type ExclusionLogEntry struct {
	ID            string         `json:"id"`
	CallID        int64          `json:"call_id"`
	ExclusionType ExclusionType  `json:"exclusion_type"`
	Action        string         `json:"action"`                 // exclude, unexclude
	StrategyKey   string         `json:"strategy_key,omitempty"` // Empty for manual entries
	DedupeKey     string         `json:"dedupe_key,omitempty"`   // Strategy-determining key (e.g. weather event id)
	Reason        string         `json:"reason"`
	Actor         *string        `json:"actor"` // nil for automatic entries
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`

	RevertedAt   *time.Time `json:"reverted_at,omitempty"`
	RevertedBy   *string    `json:"reverted_by,omitempty"`
	RevertReason *string    `json:"revert_reason,omitempty"`
}

// IsActive reports whether the entry still describes the call's current exclusion
func (e ExclusionLogEntry) IsActive() bool {
	return e.RevertedAt == nil
}

// ===========================
// REQUEST / RESPONSE MODELS
// ===========================

// Manual exclusion actions
const (
	ManualActionExclude   = "exclude"
	ManualActionUnexclude = "unexclude"
)

// DetectRequest drives a batch evaluation for a parish
type DetectRequest struct {
	ParishID        int64  `json:"-"`
	StartDate       string `json:"start_date,omitempty"` // YYYY-MM-DD, inclusive
	EndDate         string `json:"end_date,omitempty"`   // YYYY-MM-DD, inclusive
	ApplyExclusions bool   `json:"apply_exclusions"`
}

// ManualExclusionRequest is the body of POST /calls/:id/exclusions
type ManualExclusionRequest struct {
	Reason string `json:"reason"`
	Action string `json:"action"` // exclude, unexclude
}

// ExcludedCall summarises one call the engine excluded (or would exclude)
type ExcludedCall struct {
	CallID         int64  `json:"call_id"`
	ResponseNumber string `json:"response_number"`
	Strategy       string `json:"strategy"`
	Reason         string `json:"reason"`
	Applied        bool   `json:"applied"`
}

// DetectResponse is returned by batch detect and single-call evaluate
type DetectResponse struct {
	Evaluated        int            `json:"evaluated"`
	Eligible         int            `json:"eligible"`
	FlaggedForReview int            `json:"flagged_for_review"`
	Excluded         int            `json:"excluded"`
	Applied          bool           `json:"applied"`
	ExcludedCalls    []ExcludedCall `json:"excluded_calls"`
}

// ReconcileResponse is returned when AUTO exclusions are re-checked
type ReconcileResponse struct {
	Evaluated int     `json:"evaluated"`
	Released  int     `json:"released"`
	CallIDs   []int64 `json:"call_ids"`
}

// ===========================
// FORECAST MODELS
// ===========================

// ForecastRequest asks for an hourly call-volume forecast
type ForecastRequest struct {
	ParishID    int64     `json:"parish_id" binding:"required"`
	Start       time.Time `json:"start" binding:"required"`
	End         time.Time `json:"end" binding:"required"`
	Granularity string    `json:"granularity"` // global, zone, hex
}

// ForecastSummary is the outcome of a forecast run
type ForecastSummary struct {
	RowsWritten  int    `json:"rows_written,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
	Message      string `json:"message,omitempty"`
}
