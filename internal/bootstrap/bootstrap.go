// Package bootstrap wires storage, cache, event bus and services from config.
// The API server, the worker process and exclusionctl all start here.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/compliance"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/eventbus"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger/pgstore"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger/sqlstore"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

type store interface {
	ledger.Backend
	DB() *sql.DB
	Close() error
}

// App holds everything a process needs after startup
type App struct {
	Driver     ledger.DBDriver
	Backend    ledger.Backend
	DB         *sql.DB
	Publisher  eventbus.Publisher
	Exclusions *services.ExclusionService
	Forecast   *services.ForecastService // nil unless the driver is postgres

	redis *redis.Client
	store store
}

// OpenStore connects to the configured database and applies migrations
func OpenStore(cfg config.Config) (ledger.Backend, *sql.DB, ledger.DBDriver, error) {
	s, driver, err := openStore(cfg)
	if err != nil {
		return nil, nil, "", err
	}
	return s, s.DB(), driver, nil
}

func openStore(cfg config.Config) (store, ledger.DBDriver, error) {
	if cfg.DatabaseURL == "" {
		return nil, "", fmt.Errorf("DATABASE_URL environment variable (or config) is required")
	}
	driver, err := ledger.ParseDriver(cfg.DatabaseDriver)
	if err != nil {
		return nil, "", err
	}

	var s store
	switch driver {
	case ledger.DBSQLite:
		s, err = sqlstore.OpenSQLite(cfg.DatabaseURL)
	default:
		s, err = pgstore.OpenPostgres(cfg.DatabaseURL)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := ledger.Migrate(s.DB(), driver); err != nil {
		_ = s.Close()
		return nil, "", fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Printf("Connected to %s database", driver)
	return s, driver, nil
}

// New opens every dependency. Redis and NATS are optional; when their URLs
// are empty the process falls back to an in-process cache and no events.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	s, driver, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Driver: driver, Backend: s, DB: s.DB(), store: s}

	cache, err := app.thresholdCache(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	thresholds := compliance.NewThresholdResolver(s, cache, cfg.Engine.DefaultThresholdMinutes)

	publisher, err := eventbus.New(cfg.NatsURL)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	app.Publisher = publisher
	if np, ok := publisher.(*eventbus.NATSPublisher); ok && !np.IsConnected() {
		log.Println("NATS not reachable yet, publisher will keep retrying")
	}

	app.Exclusions = services.NewExclusionService(s, thresholds, publisher, services.ExclusionServiceOptions{
		Settings:         cfg.Engine.StrategySettings(),
		BatchConcurrency: cfg.Engine.BatchConcurrency,
	})
	log.Printf("Exclusion engine ready: strategies %v, batch concurrency %d",
		app.Exclusions.Arbitrator.Strategies(), cfg.Engine.BatchConcurrency)

	if driver == ledger.DBPostgres {
		app.Forecast = services.NewForecastService(s.DB())
	}
	return app, nil
}

func (a *App) thresholdCache(ctx context.Context, cfg config.Config) (compliance.Cache, error) {
	if cfg.RedisURL == "" {
		return compliance.NewMemoryCache(cfg.Engine.ThresholdCacheTTL), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.redis = client
	log.Println("Using Redis threshold cache")
	return compliance.NewRedisCache(client, cfg.Engine.ThresholdCacheTTL), nil
}

func (a *App) Close() {
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
