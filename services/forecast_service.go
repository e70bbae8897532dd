package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

const (
	ForecastModelVersion = "naive_v0"
	forecastCellGlobal   = "global"
	forecastHistory      = 90 * 24 * time.Hour
)

// ForecastService writes hourly call-volume forecasts into forecast_heatmap
type ForecastService struct {
	PG *sql.DB
}

func NewForecastService(pg *sql.DB) *ForecastService {
	return &ForecastService{PG: pg}
}

// GenerateForecast predicts the mean hourly call count of the parish's last
// 90 days for every hour from start to end inclusive.
func (s *ForecastService) GenerateForecast(ctx context.Context, req db.ForecastRequest) (*db.ForecastSummary, error) {
	if req.End.Before(req.Start) {
		return nil, &ledger.ValidationError{Field: "end", Message: "must not be before start"}
	}

	rows, err := s.PG.QueryContext(ctx, `
		SELECT queue_time
		FROM calls
		WHERE parish_id = $1
		  AND queue_time IS NOT NULL
		  AND queue_time >= $2
		  AND queue_time < $3
	`, req.ParishID, req.Start.Add(-forecastHistory), req.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	perHour := map[time.Time]int{}
	total := 0
	for rows.Next() {
		var queued time.Time
		if err := rows.Scan(&queued); err != nil {
			return nil, fmt.Errorf("failed to scan call history: %w", err)
		}
		perHour[queued.UTC().Truncate(time.Hour)]++
		total++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call history: %w", err)
	}

	if total == 0 {
		return &db.ForecastSummary{Message: "No data"}, nil
	}

	// Mean over hours that saw at least one call
	mean := float64(total) / float64(len(perHour))

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	written := 0
	for bucket := req.Start.UTC(); !bucket.After(req.End.UTC()); bucket = bucket.Add(time.Hour) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_heatmap (parish_id, cell_id, bucket_start, bucket_end, forecast_calls, model_version)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, req.ParishID, forecastCellGlobal, bucket, bucket.Add(time.Hour), mean, ForecastModelVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to write forecast bucket: %w", err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit forecast: %w", err)
	}

	log.Printf("Forecast: parish %d, %d buckets at %.2f calls/hour (%s)", req.ParishID, written, mean, ForecastModelVersion)
	return &db.ForecastSummary{RowsWritten: written, ModelVersion: ForecastModelVersion}, nil
}
