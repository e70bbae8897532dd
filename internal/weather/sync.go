package weather

import (
	"context"
	"fmt"
	"log"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

// Source is anything that can list active alerts for a state
type Source interface {
	ActiveAlerts(ctx context.Context, state string) ([]db.WeatherEvent, error)
}

// Sync stores the active alerts of each state. Alerts already stored are
// updated in place, keyed by their external id.
func Sync(ctx context.Context, src Source, w ledger.WeatherWriter, states []string) (int, error) {
	stored := 0
	for _, state := range states {
		events, err := src.ActiveAlerts(ctx, state)
		if err != nil {
			return stored, fmt.Errorf("failed to fetch alerts for %s: %w", state, err)
		}
		for _, ev := range events {
			if err := w.UpsertWeatherEvent(ctx, ev); err != nil {
				return stored, fmt.Errorf("failed to store alert %s: %w", ev.ExternalID, err)
			}
			stored++
		}
		log.Printf("Weather sync: %d active alerts for %s", len(events), state)
	}
	return stored, nil
}
