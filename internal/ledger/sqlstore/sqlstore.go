// Package sqlstore is the SQLite backend used in lite mode and in tests.
// Timestamps are stored as fixed-width UTC text so they sort lexically.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const callColumns = `id, response_number, parish_id, region_id, response_area, city, latitude, longitude,
queue_time, dispatch_time, arrival_time, response_time_minutes, threshold_minutes, is_out_of_compliance,
COALESCE(exclusion_type, ''), COALESCE(exclusion_reason, ''), COALESCE(exclusion_strategy, ''), excluded_at,
COALESCE(excluded_by, ''), exclusion_metadata, created_at, updated_at`

const logColumns = `id, call_id, exclusion_type, action, strategy_key, dedupe_key, reason, actor, metadata,
created_at, reverted_at, reverted_by, revert_reason`

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite would otherwise return SQLITE_BUSY under load
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertCall stores a new call and returns its id
func (s *Store) InsertCall(ctx context.Context, c db.Call) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO calls (response_number, parish_id, region_id, response_area, city, latitude, longitude,
queue_time, dispatch_time, arrival_time, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ResponseNumber, c.ParishID, c.RegionID, c.ResponseArea, c.City, c.Latitude, c.Longitude,
		formatTimePtr(c.QueueTime), formatTimePtr(c.DispatchTime), formatTimePtr(c.ArrivalTime), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert call %s: %w", c.ResponseNumber, err)
	}
	return res.LastInsertId()
}

func (s *Store) PutZoneThreshold(ctx context.Context, z db.ZoneThreshold) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO zone_thresholds (parish_id, zone_name, threshold_minutes) VALUES (?, ?, ?)
ON CONFLICT(parish_id, zone_name) DO UPDATE SET threshold_minutes = excluded.threshold_minutes`,
		z.ParishID, z.ZoneName, z.ThresholdMinutes)
	return err
}

func (s *Store) PutParishSettings(ctx context.Context, p db.ParishSettings) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO parish_settings (parish_id, name, state, default_threshold_minutes) VALUES (?, ?, ?, ?)
ON CONFLICT(parish_id) DO UPDATE SET name = excluded.name, state = excluded.state, default_threshold_minutes = excluded.default_threshold_minutes`,
		p.ParishID, p.Name, p.State, p.DefaultThresholdMinutes)
	return err
}

func (s *Store) GetCall(ctx context.Context, callID int64) (*db.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, callID)
	return scanCall(row)
}

func (s *Store) ListCalls(ctx context.Context, filter db.CallFilter) ([]db.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE parish_id = ?`
	args := []interface{}{filter.ParishID}

	if filter.From != nil {
		query += " AND queue_time >= ?"
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		query += " AND queue_time < ?"
		args = append(args, formatTime(*filter.To))
	}
	if filter.ExclusionType != nil {
		if *filter.ExclusionType == db.ExclusionNone {
			query += " AND exclusion_type IS NULL"
		} else {
			query += " AND exclusion_type = ?"
			args = append(args, string(*filter.ExclusionType))
		}
	}
	query += " ORDER BY queue_time IS NULL, queue_time ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	calls := []db.Call{}
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

func (s *Store) ListLogEntries(ctx context.Context, callID int64) ([]db.ExclusionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM exclusion_log WHERE call_id = ? ORDER BY created_at ASC, rowid ASC`, callID)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusion log: %w", err)
	}
	defer rows.Close()

	entries := []db.ExclusionLogEntry{}
	for rows.Next() {
		e, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (s *Store) ListZoneThresholds(ctx context.Context, parishID int64) ([]db.ZoneThreshold, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT parish_id, zone_name, threshold_minutes FROM zone_thresholds WHERE parish_id = ?`, parishID)
	if err != nil {
		return nil, fmt.Errorf("failed to list zone thresholds: %w", err)
	}
	defer rows.Close()

	zones := []db.ZoneThreshold{}
	for rows.Next() {
		var z db.ZoneThreshold
		if err := rows.Scan(&z.ParishID, &z.ZoneName, &z.ThresholdMinutes); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

func (s *Store) GetParishSettings(ctx context.Context, parishID int64) (*db.ParishSettings, error) {
	var p db.ParishSettings
	var def sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT parish_id, name, state, default_threshold_minutes FROM parish_settings WHERE parish_id = ?`, parishID).
		Scan(&p.ParishID, &p.Name, &p.State, &def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parish settings: %w", err)
	}
	if def.Valid {
		p.DefaultThresholdMinutes = &def.Float64
	}
	return &p, nil
}

func (s *Store) ListWeatherEvents(ctx context.Context, from, to time.Time, state string) ([]db.WeatherEvent, error) {
	query := `SELECT external_id, state, event_type, severity, area_desc, starts_at, ends_at, geometry
FROM weather_events
WHERE starts_at < ? AND ends_at > ?`
	args := []interface{}{formatTime(to), formatTime(from)}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}
	query += " ORDER BY starts_at ASC, external_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list weather events: %w", err)
	}
	defer rows.Close()

	events := []db.WeatherEvent{}
	for rows.Next() {
		var (
			ev             db.WeatherEvent
			startsAt, ends string
			geometry       sql.NullString
		)
		if err := rows.Scan(&ev.ExternalID, &ev.State, &ev.EventType, &ev.Severity, &ev.AreaDesc, &startsAt, &ends, &geometry); err != nil {
			return nil, err
		}
		if ev.StartsAt, err = parseTime(startsAt); err != nil {
			return nil, err
		}
		if ev.EndsAt, err = parseTime(ends); err != nil {
			return nil, err
		}
		if geometry.Valid && geometry.String != "" {
			ev.Geometry = json.RawMessage(geometry.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) UpsertWeatherEvent(ctx context.Context, ev db.WeatherEvent) error {
	var geometry interface{}
	if ev.HasGeometry() {
		geometry = string(ev.Geometry)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO weather_events (external_id, state, event_type, severity, area_desc, starts_at, ends_at, geometry, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
  state = excluded.state,
  event_type = excluded.event_type,
  severity = excluded.severity,
  area_desc = excluded.area_desc,
  starts_at = excluded.starts_at,
  ends_at = excluded.ends_at,
  geometry = excluded.geometry,
  updated_at = excluded.updated_at`,
		ev.ExternalID, ev.State, ev.EventType, string(ev.Severity), ev.AreaDesc,
		formatTime(ev.StartsAt), formatTime(ev.EndsAt), geometry, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert weather event %s: %w", ev.ExternalID, err)
	}
	return nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) GetCall(ctx context.Context, callID int64) (*db.Call, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = ?`, callID)
	return scanCall(row)
}

func (t *Tx) SetCallCompliance(ctx context.Context, callID int64, c compliance.Classification) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE calls
SET response_time_minutes = ?, threshold_minutes = ?, is_out_of_compliance = ?, updated_at = ?
WHERE id = ?`, c.ResponseTimeMinutes, c.ThresholdMinutes, c.IsOutOfCompliance, formatTime(time.Now()), callID)
	return err
}

func (t *Tx) SetCallExclusion(ctx context.Context, callID int64, ex *db.CallExclusion) error {
	now := formatTime(time.Now())
	if ex == nil {
		_, err := t.tx.ExecContext(ctx, `UPDATE calls
SET exclusion_type = NULL, exclusion_reason = NULL, exclusion_strategy = NULL, excluded_at = NULL,
    excluded_by = NULL, exclusion_metadata = NULL, updated_at = ?
WHERE id = ?`, now, callID)
		return err
	}

	metadata, err := marshalMetadata(ex.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE calls
SET exclusion_type = ?, exclusion_reason = ?, exclusion_strategy = NULLIF(?, ''), excluded_at = ?,
    excluded_by = ?, exclusion_metadata = ?, updated_at = ?
WHERE id = ?`, string(ex.Type), ex.Reason, ex.Strategy, formatTime(ex.At), ex.By, metadata, now, callID)
	return err
}

func (t *Tx) GetActiveLogEntry(ctx context.Context, callID int64) (*db.ExclusionLogEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+logColumns+` FROM exclusion_log WHERE call_id = ? AND reverted_at IS NULL`, callID)
	e, err := scanLogEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

func (t *Tx) InsertLogEntry(ctx context.Context, e db.ExclusionLogEntry) (bool, error) {
	metadata, err := marshalMetadata(e.Metadata)
	if err != nil {
		return false, err
	}
	if metadata == nil {
		metadata = "{}"
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO exclusion_log (`+logColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`,
		e.ID, e.CallID, string(e.ExclusionType), e.Action, e.StrategyKey, e.DedupeKey, e.Reason, e.Actor, metadata,
		formatTime(e.CreatedAt), formatTimePtr(e.RevertedAt), e.RevertedBy, e.RevertReason)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (t *Tx) MarkLogEntryReverted(ctx context.Context, entryID string, at time.Time, by *string, reason string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE exclusion_log SET reverted_at = ?, reverted_by = ?, revert_reason = ?
WHERE id = ? AND reverted_at IS NULL`, formatTime(at), by, reason, entryID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("exclusion log entry %s is not active", entryID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row scanner) (*db.Call, error) {
	var (
		c                                db.Call
		regionID                         sql.NullInt64
		lat, lng, rt, threshold          sql.NullFloat64
		queueTime, dispatchTime, arrival sql.NullString
		excludedAt, metadata             sql.NullString
		outOfCompliance                  sql.NullBool
		exclusionType                    string
		createdAt, updatedAt             string
	)
	err := row.Scan(&c.ID, &c.ResponseNumber, &c.ParishID, &regionID, &c.ResponseArea, &c.City, &lat, &lng,
		&queueTime, &dispatchTime, &arrival, &rt, &threshold, &outOfCompliance,
		&exclusionType, &c.ExclusionReason, &c.ExclusionStrategy, &excludedAt,
		&c.ExcludedBy, &metadata, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan call: %w", err)
	}

	if regionID.Valid {
		c.RegionID = &regionID.Int64
	}
	c.Latitude = nullFloat(lat)
	c.Longitude = nullFloat(lng)
	c.ResponseTimeMinutes = nullFloat(rt)
	c.ThresholdMinutes = nullFloat(threshold)
	if outOfCompliance.Valid {
		c.IsOutOfCompliance = &outOfCompliance.Bool
	}
	c.ExclusionType = db.ExclusionType(exclusionType)

	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{queueTime, &c.QueueTime},
		{dispatchTime, &c.DispatchTime},
		{arrival, &c.ArrivalTime},
		{excludedAt, &c.ExcludedAt},
	} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, err
		}
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &c.ExclusionMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode exclusion metadata: %w", err)
		}
	}
	return &c, nil
}

func scanLogEntry(row scanner) (*db.ExclusionLogEntry, error) {
	var (
		e             db.ExclusionLogEntry
		exclusionType string
		metadata      string
		createdAt     string
		revertedAt    sql.NullString
	)
	err := row.Scan(&e.ID, &e.CallID, &exclusionType, &e.Action, &e.StrategyKey, &e.DedupeKey, &e.Reason, &e.Actor, &metadata,
		&createdAt, &revertedAt, &e.RevertedBy, &e.RevertReason)
	if err != nil {
		return nil, err
	}
	e.ExclusionType = db.ExclusionType(exclusionType)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.RevertedAt, err = parseNullTime(revertedAt); err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}
	return &e, nil
}

func marshalMetadata(m map[string]any) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older tooling
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
