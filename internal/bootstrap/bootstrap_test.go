package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/config"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/eventbus"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/exclusion"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
)

func TestNew_SQLiteLiteMode(t *testing.T) {
	cfg := config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    "file:bootstrap_lite?mode=memory&cache=shared",
	}

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, ledger.DBSQLite, app.Driver)
	assert.Nil(t, app.Forecast, "forecasts need postgres")
	assert.IsType(t, eventbus.NoopPublisher{}, app.Publisher)
	require.NotNil(t, app.Exclusions)
	assert.Equal(t, []exclusion.StrategyKey{exclusion.StrategyWeather, exclusion.StrategyPeakLoad}, app.Exclusions.Arbitrator.Strategies())

	resp, err := app.Exclusions.Detect(context.Background(), db.DetectRequest{ParishID: 1, StartDate: "2025-06-10", EndDate: "2025-06-10"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Evaluated)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"missing url", config.Config{DatabaseDriver: "sqlite"}, "DATABASE_URL"},
		{"bad driver", config.Config{DatabaseDriver: "mysql", DatabaseURL: "x"}, "unsupported db driver"},
		{"bad redis url", config.Config{DatabaseDriver: "sqlite", DatabaseURL: "file:bootstrap_redis?mode=memory&cache=shared", RedisURL: "not-a-url"}, "invalid REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
