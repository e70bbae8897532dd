package main

import (
	"log"
	"os"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/bootstrap"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
)

func main() {
	if err := config.LoadConfig(os.Getenv("EXCLUSION_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Println("Running migration...")
	_, conn, driver, err := bootstrap.OpenStore(config.App)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer conn.Close()

	log.Printf("Migrations applied successfully (%s)!", driver)
}
