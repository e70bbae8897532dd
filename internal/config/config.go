package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/exclusion"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL    string `mapstructure:"database_url"`
	DatabaseDriver string `mapstructure:"database_driver"` // postgres, sqlite
	RedisURL       string `mapstructure:"redis_url"`
	NatsURL        string `mapstructure:"nats_url"`
	Port           string `mapstructure:"port"`

	// HS256 secret for bearer tokens; the token's email claim is the acting user
	JWTSecret string `mapstructure:"jwt_secret"`

	Engine  EngineConfig  `mapstructure:"engine"`
	Workers WorkersConfig `mapstructure:"workers"`
	Weather WeatherConfig `mapstructure:"weather"`
}

type EngineConfig struct {
	Weather                 WeatherStrategyConfig  `mapstructure:"weather"`
	PeakLoad                PeakLoadStrategyConfig `mapstructure:"peak_load"`
	ThresholdCacheTTL       time.Duration          `mapstructure:"threshold_cache_ttl"`
	BatchConcurrency        int                    `mapstructure:"batch_concurrency"`
	DefaultThresholdMinutes float64                `mapstructure:"default_threshold_minutes"`
}

type WeatherStrategyConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Confidence float64 `mapstructure:"confidence"`
}

type PeakLoadStrategyConfig struct {
	Enabled              bool `mapstructure:"enabled"`
	WindowMinutes        int  `mapstructure:"window_minutes"`
	AutoExcludeThreshold int  `mapstructure:"auto_exclude_threshold"`
	EligibleMinimum      int  `mapstructure:"eligible_minimum"`
}

type WorkersConfig struct {
	DetectInterval  time.Duration `mapstructure:"detect_interval"`
	DetectParishes  []int64       `mapstructure:"detect_parishes"`
	DetectLookback  int           `mapstructure:"detect_lookback_days"`
	WeatherInterval time.Duration `mapstructure:"weather_interval"`
}

type WeatherConfig struct {
	FeedURL   string   `mapstructure:"feed_url"`
	UserAgent string   `mapstructure:"user_agent"`
	States    []string `mapstructure:"states"`
	RPS       float64  `mapstructure:"rps"`
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Auto-load .env file if present (local development)
	if err := godotenv.Load(); err == nil {
		log.Println("✅ Loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	// Config file settings
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config") // Look for dev.config.yaml
		v.SetConfigType("yaml")
	}

	// Bind standard environment variables (Docker/deploy compatibility)
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("database_driver", "DATABASE_DRIVER")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("nats_url", "NATS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	_ = v.BindEnv("weather.feed_url", "WEATHER_FEED_URL")
	_ = v.BindEnv("weather.user_agent", "WEATHER_USER_AGENT")
	_ = v.BindEnv("weather.states", "WEATHER_STATES")
	_ = v.BindEnv("weather.rps", "WEATHER_RPS")

	_ = v.BindEnv("engine.weather.enabled", "ENGINE_WEATHER_ENABLED")
	_ = v.BindEnv("engine.peak_load.enabled", "ENGINE_PEAK_LOAD_ENABLED")
	_ = v.BindEnv("engine.peak_load.window_minutes", "ENGINE_PEAK_LOAD_WINDOW_MINUTES")
	_ = v.BindEnv("engine.peak_load.auto_exclude_threshold", "ENGINE_PEAK_LOAD_THRESHOLD")
	_ = v.BindEnv("engine.batch_concurrency", "ENGINE_BATCH_CONCURRENCY")

	_ = v.BindEnv("workers.detect_interval", "DETECT_INTERVAL")
	_ = v.BindEnv("workers.detect_parishes", "DETECT_PARISHES")
	_ = v.BindEnv("workers.detect_lookback_days", "DETECT_LOOKBACK_DAYS")
	_ = v.BindEnv("workers.weather_interval", "WEATHER_INTERVAL")

	v.AutomaticEnv()

	// 1. Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("ℹ️  No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("✅ Loaded config from: %s", v.ConfigFileUsed())
	}

	// 2. Unmarshal into struct
	App = Config{}
	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_driver", "postgres")

	v.SetDefault("engine.weather.enabled", true)
	v.SetDefault("engine.weather.confidence", 0.95)
	v.SetDefault("engine.peak_load.enabled", true)
	v.SetDefault("engine.peak_load.window_minutes", 45)
	v.SetDefault("engine.peak_load.auto_exclude_threshold", 3)
	v.SetDefault("engine.peak_load.eligible_minimum", 2)
	v.SetDefault("engine.threshold_cache_ttl", "60s")
	v.SetDefault("engine.batch_concurrency", 8)
	v.SetDefault("engine.default_threshold_minutes", 10)

	v.SetDefault("workers.detect_interval", "15m")
	v.SetDefault("workers.detect_lookback_days", 2)
	v.SetDefault("workers.weather_interval", "5m")

	v.SetDefault("weather.feed_url", "https://api.weather.gov")
	v.SetDefault("weather.states", []string{"LA"})
	v.SetDefault("weather.rps", 1)
}

// StrategySettings maps the engine section onto the strategy configuration
func (e EngineConfig) StrategySettings() exclusion.Settings {
	return exclusion.Settings{
		Weather: exclusion.WeatherSettings{
			Enabled:    e.Weather.Enabled,
			Confidence: e.Weather.Confidence,
		},
		PeakLoad: exclusion.PeakLoadSettings{
			Enabled:              e.PeakLoad.Enabled,
			WindowMinutes:        e.PeakLoad.WindowMinutes,
			AutoExcludeThreshold: e.PeakLoad.AutoExcludeThreshold,
			EligibleMinimum:      e.PeakLoad.EligibleMinimum,
		},
	}
}
