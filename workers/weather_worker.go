package workers

import (
	"context"
	"log"
	"time"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/weather"
)

// WeatherWorker keeps weather_events current from the alert feed
type WeatherWorker struct {
	Source   weather.Source
	Store    ledger.WeatherWriter
	States   []string
	Interval time.Duration
}

func NewWeatherWorker(source weather.Source, store ledger.WeatherWriter, states []string, interval time.Duration) *WeatherWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &WeatherWorker{
		Source:   source,
		Store:    store,
		States:   states,
		Interval: interval,
	}
}

// StartWeatherWorker runs until the context is cancelled
func (w *WeatherWorker) StartWeatherWorker(ctx context.Context) {
	log.Printf("Weather worker started, polling %v every %s", w.States, w.Interval)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("Weather worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *WeatherWorker) RunOnce(ctx context.Context) int {
	n, err := weather.Sync(ctx, w.Source, w.Store, w.States)
	if err != nil {
		log.Printf("Weather worker: sync failed after %d alerts: %v", n, err)
	}
	return n
}
