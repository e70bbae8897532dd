package main

import (
	"context"
	"log"
	"os"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/bootstrap"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/router"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

func main() {
	log.Println("Starting exclusion API...")

	configPath := os.Getenv("EXCLUSION_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := bootstrap.New(context.Background(), config.App)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	r := router.NewGinRouter(router.Services{
		Exclusions: app.Exclusions,
		Forecast:   app.Forecast,
		Auth:       services.NewAuthService(config.App.JWTSecret),
	})

	log.Printf("Listening on :%s", config.App.Port)
	if err := r.Run(":" + config.App.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
