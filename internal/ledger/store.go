package ledger

import (
	"context"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
)

// CallReader loads call context for evaluation
type CallReader interface {
	GetCall(ctx context.Context, callID int64) (*db.Call, error)
	ListCalls(ctx context.Context, filter db.CallFilter) ([]db.Call, error)
}

// WeatherReader lists alerts whose validity interval overlaps [from, to).
// An empty state matches every jurisdiction.
type WeatherReader interface {
	ListWeatherEvents(ctx context.Context, from, to time.Time, state string) ([]db.WeatherEvent, error)
}

// WeatherWriter stores alerts pulled from the feed, keyed by external id
type WeatherWriter interface {
	UpsertWeatherEvent(ctx context.Context, ev db.WeatherEvent) error
}

// Store is the persisted state of calls and their exclusion audit trail
type Store interface {
	CallReader
	WithTx(ctx context.Context, fn func(Tx) error) error
	ListLogEntries(ctx context.Context, callID int64) ([]db.ExclusionLogEntry, error)
}

// Tx groups the call-field writer and the audit writer so they commit together
type Tx interface {
	// GetCall reads the call, locking it for the rest of the transaction
	// where the backend supports row locks. Returns ErrNotFound.
	GetCall(ctx context.Context, callID int64) (*db.Call, error)

	// SetCallCompliance writes the derived compliance fields
	SetCallCompliance(ctx context.Context, callID int64, c compliance.Classification) error

	// SetCallExclusion writes the exclusion fields; nil clears them
	SetCallExclusion(ctx context.Context, callID int64, ex *db.CallExclusion) error

	// GetActiveLogEntry returns the entry with no revert, or nil
	GetActiveLogEntry(ctx context.Context, callID int64) (*db.ExclusionLogEntry, error)

	// InsertLogEntry appends an entry. It returns false, without error, when
	// the storage uniqueness guard rejected it as a second active entry.
	InsertLogEntry(ctx context.Context, entry db.ExclusionLogEntry) (bool, error)

	// MarkLogEntryReverted fills the revert fields of an active entry
	MarkLogEntryReverted(ctx context.Context, entryID string, at time.Time, by *string, reason string) error
}

// Backend is everything the exclusion service needs from storage
type Backend interface {
	Store
	WeatherReader
	WeatherWriter
	compliance.ThresholdReader
}
