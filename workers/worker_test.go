package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

// MockSource
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ActiveAlerts(ctx context.Context, state string) ([]db.WeatherEvent, error) {
	args := m.Called(ctx, state)
	events, _ := args.Get(0).([]db.WeatherEvent)
	return events, args.Error(1)
}

func TestDetectWorker_RunOnce(t *testing.T) {
	now := time.Date(2025, 6, 11, 6, 0, 0, 0, time.UTC)
	store := ledger.NewInMemoryStore()
	store.PutZoneThreshold(db.ZoneThreshold{ParishID: 1, ZoneName: "Zone A", ThresholdMinutes: 8})

	queued := time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC)
	dispatched := queued.Add(time.Minute)
	arrived := dispatched.Add(14 * time.Minute)
	store.PutCall(db.Call{
		ID: 1, ResponseNumber: "25-000001", ParishID: 1, ResponseArea: "Zone A", City: "Alexandria",
		QueueTime: &queued, DispatchTime: &dispatched, ArrivalTime: &arrived,
	})
	require.NoError(t, store.UpsertWeatherEvent(context.Background(), db.WeatherEvent{
		ExternalID: "urn:oid:storm-1", EventType: "Tornado Warning", Severity: db.WeatherSeverityExtreme,
		AreaDesc: "Alexandria", StartsAt: queued, EndsAt: queued.Add(time.Hour),
	}))

	svc := services.NewExclusionService(store, nil, nil, services.ExclusionServiceOptions{}).
		WithClock(func() time.Time { return now })
	w := NewDetectWorker(svc, []int64{1, 2}, time.Minute, 2)
	w.now = func() time.Time { return now }

	w.RunOnce(context.Background())

	call, err := store.GetCall(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, db.ExclusionAuto, call.ExclusionType)
	assert.Equal(t, "WEATHER", call.ExclusionStrategy)
}

func TestDetectWorker_StopsOnCancel(t *testing.T) {
	svc := services.NewExclusionService(ledger.NewInMemoryStore(), nil, nil, services.ExclusionServiceOptions{})
	w := NewDetectWorker(svc, nil, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.StartDetectWorker(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("detect worker did not stop")
	}
}

func TestWeatherWorker_RunOnce(t *testing.T) {
	store := ledger.NewInMemoryStore()
	source := new(MockSource)
	start := time.Date(2025, 6, 10, 17, 0, 0, 0, time.UTC)
	source.On("ActiveAlerts", mock.Anything, "LA").Return([]db.WeatherEvent{
		{ExternalID: "urn:oid:1", State: "LA", EventType: "Flood Warning", StartsAt: start, EndsAt: start.Add(time.Hour)},
	}, nil)
	source.On("ActiveAlerts", mock.Anything, "MS").Return(nil, errors.New("feed down"))

	w := NewWeatherWorker(source, store, []string{"LA", "MS"}, 0)
	assert.Equal(t, 1, w.RunOnce(context.Background()))

	events, err := store.ListWeatherEvents(context.Background(), start, start.Add(time.Hour), "LA")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	source.AssertExpectations(t)
}
