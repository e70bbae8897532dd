package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/bootstrap"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/weather"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/workers"
)

func main() {
	log.Println("Starting workers...")

	// Load Config
	configPath := os.Getenv("EXCLUSION_CONFIG_PATH")

	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, config.App)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	var wg sync.WaitGroup

	if len(config.App.Workers.DetectParishes) > 0 {
		detectWorker := workers.NewDetectWorker(
			app.Exclusions,
			config.App.Workers.DetectParishes,
			config.App.Workers.DetectInterval,
			config.App.Workers.DetectLookback,
		)

		wg.Add(1)
		go func() {
			defer wg.Done()
			detectWorker.StartDetectWorker(ctx)
		}()
	} else {
		log.Println("No parishes configured, detect worker disabled")
	}

	if len(config.App.Weather.States) > 0 {
		client := weather.NewClient(config.App.Weather.FeedURL, config.App.Weather.UserAgent, config.App.Weather.RPS)
		weatherWorker := workers.NewWeatherWorker(client, app.Backend, config.App.Weather.States, config.App.Workers.WeatherInterval)

		wg.Add(1)
		go func() {
			defer wg.Done()
			weatherWorker.StartWeatherWorker(ctx)
		}()
	} else {
		log.Println("No weather states configured, weather worker disabled")
	}

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Println("Workers started successfully. Press Ctrl+C to stop.")
	<-c

	log.Println("Shutting down workers...")
	cancel()
	wg.Wait()
}
