package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

const callColumns = `id, response_number, parish_id, region_id, response_area, city, latitude, longitude,
queue_time, dispatch_time, arrival_time, response_time_minutes, threshold_minutes, is_out_of_compliance,
COALESCE(exclusion_type, ''), COALESCE(exclusion_reason, ''), COALESCE(exclusion_strategy, ''), excluded_at,
COALESCE(excluded_by, ''), exclusion_metadata, created_at, updated_at`

const logColumns = `id, call_id, exclusion_type, action, strategy_key, dedupe_key, reason, actor, metadata,
created_at, reverted_at, reverted_by, revert_reason`

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

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

func (s *Store) GetCall(ctx context.Context, callID int64) (*db.Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, callID)
	return scanCall(row)
}

func (s *Store) ListCalls(ctx context.Context, filter db.CallFilter) ([]db.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE parish_id = $1`
	args := []interface{}{filter.ParishID}
	argIndex := 2

	if filter.From != nil {
		query += fmt.Sprintf(" AND queue_time >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND queue_time < $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}
	if filter.ExclusionType != nil {
		if *filter.ExclusionType == db.ExclusionNone {
			query += " AND exclusion_type IS NULL"
		} else {
			query += fmt.Sprintf(" AND exclusion_type = $%d", argIndex)
			args = append(args, string(*filter.ExclusionType))
			argIndex++
		}
	}
	query += " ORDER BY queue_time ASC NULLS LAST, id ASC"

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
	rows, err := s.db.QueryContext(ctx, `SELECT `+logColumns+` FROM exclusion_log WHERE call_id = $1 ORDER BY created_at ASC, action ASC`, callID)
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
	rows, err := s.db.QueryContext(ctx, `SELECT parish_id, zone_name, threshold_minutes FROM zone_thresholds WHERE parish_id = $1`, parishID)
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
	err := s.db.QueryRowContext(ctx, `SELECT parish_id, name, state, default_threshold_minutes FROM parish_settings WHERE parish_id = $1`, parishID).
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
WHERE starts_at < $1 AND ends_at > $2`
	args := []interface{}{to, from}
	if state != "" {
		query += " AND state = $3"
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
		var ev db.WeatherEvent
		var geometry []byte
		if err := rows.Scan(&ev.ExternalID, &ev.State, &ev.EventType, &ev.Severity, &ev.AreaDesc, &ev.StartsAt, &ev.EndsAt, &geometry); err != nil {
			return nil, err
		}
		if len(geometry) > 0 {
			ev.Geometry = json.RawMessage(geometry)
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, NOW())
ON CONFLICT (external_id) DO UPDATE SET
  state = EXCLUDED.state,
  event_type = EXCLUDED.event_type,
  severity = EXCLUDED.severity,
  area_desc = EXCLUDED.area_desc,
  starts_at = EXCLUDED.starts_at,
  ends_at = EXCLUDED.ends_at,
  geometry = EXCLUDED.geometry,
  updated_at = NOW()`,
		ev.ExternalID, ev.State, ev.EventType, string(ev.Severity), ev.AreaDesc, ev.StartsAt, ev.EndsAt, geometry)
	if err != nil {
		return fmt.Errorf("failed to upsert weather event %s: %w", ev.ExternalID, err)
	}
	return nil
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) GetCall(ctx context.Context, callID int64) (*db.Call, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, callID)
	return scanCall(row)
}

func (t *Tx) SetCallCompliance(ctx context.Context, callID int64, c compliance.Classification) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE calls
SET response_time_minutes = $2, threshold_minutes = $3, is_out_of_compliance = $4, updated_at = NOW()
WHERE id = $1`, callID, c.ResponseTimeMinutes, c.ThresholdMinutes, c.IsOutOfCompliance)
	return err
}

func (t *Tx) SetCallExclusion(ctx context.Context, callID int64, ex *db.CallExclusion) error {
	if ex == nil {
		_, err := t.tx.ExecContext(ctx, `UPDATE calls
SET exclusion_type = NULL, exclusion_reason = NULL, exclusion_strategy = NULL, excluded_at = NULL,
    excluded_by = NULL, exclusion_metadata = NULL, updated_at = NOW()
WHERE id = $1`, callID)
		return err
	}

	metadata, err := marshalMetadata(ex.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE calls
SET exclusion_type = $2, exclusion_reason = $3, exclusion_strategy = NULLIF($4, ''), excluded_at = $5,
    excluded_by = $6, exclusion_metadata = $7::jsonb, updated_at = NOW()
WHERE id = $1`, callID, string(ex.Type), ex.Reason, ex.Strategy, ex.At, ex.By, metadata)
	return err
}

func (t *Tx) GetActiveLogEntry(ctx context.Context, callID int64) (*db.ExclusionLogEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+logColumns+` FROM exclusion_log WHERE call_id = $1 AND reverted_at IS NULL FOR UPDATE`, callID)
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
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13)
ON CONFLICT DO NOTHING`,
		e.ID, e.CallID, string(e.ExclusionType), e.Action, e.StrategyKey, e.DedupeKey, e.Reason, e.Actor, metadata,
		e.CreatedAt, e.RevertedAt, e.RevertedBy, e.RevertReason)
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
	res, err := t.tx.ExecContext(ctx, `UPDATE exclusion_log SET reverted_at = $2, reverted_by = $3, revert_reason = $4
WHERE id = $1 AND reverted_at IS NULL`, entryID, at, by, reason)
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
		queueTime, dispatchTime, arrival sql.NullTime
		excludedAt                       sql.NullTime
		outOfCompliance                  sql.NullBool
		exclusionType                    string
		metadata                         []byte
	)
	err := row.Scan(&c.ID, &c.ResponseNumber, &c.ParishID, &regionID, &c.ResponseArea, &c.City, &lat, &lng,
		&queueTime, &dispatchTime, &arrival, &rt, &threshold, &outOfCompliance,
		&exclusionType, &c.ExclusionReason, &c.ExclusionStrategy, &excludedAt,
		&c.ExcludedBy, &metadata, &c.CreatedAt, &c.UpdatedAt)
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
	c.QueueTime = nullTime(queueTime)
	c.DispatchTime = nullTime(dispatchTime)
	c.ArrivalTime = nullTime(arrival)
	c.ResponseTimeMinutes = nullFloat(rt)
	c.ThresholdMinutes = nullFloat(threshold)
	if outOfCompliance.Valid {
		c.IsOutOfCompliance = &outOfCompliance.Bool
	}
	c.ExclusionType = db.ExclusionType(exclusionType)
	c.ExcludedAt = nullTime(excludedAt)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.ExclusionMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode exclusion metadata: %w", err)
		}
	}
	return &c, nil
}

func scanLogEntry(row scanner) (*db.ExclusionLogEntry, error) {
	var (
		e             db.ExclusionLogEntry
		exclusionType string
		metadata      []byte
		revertedAt    sql.NullTime
	)
	err := row.Scan(&e.ID, &e.CallID, &exclusionType, &e.Action, &e.StrategyKey, &e.DedupeKey, &e.Reason, &e.Actor, &metadata,
		&e.CreatedAt, &revertedAt, &e.RevertedBy, &e.RevertReason)
	if err != nil {
		return nil, err
	}
	e.ExclusionType = db.ExclusionType(exclusionType)
	e.RevertedAt = nullTime(revertedAt)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
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

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
