package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/eventbus"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

const testSecret = "handler-test-secret"

type exclusionFixture struct {
	engine *gin.Engine
	store  *ledger.InMemoryStore
	token  string
}

func newExclusionFixture(t *testing.T) *exclusionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		ExternalID: "urn:oid:storm-1", EventType: "Severe Thunderstorm Warning", Severity: db.WeatherSeveritySevere,
		AreaDesc: "Rapides; Alexandria", StartsAt: queued.Add(-time.Hour), EndsAt: queued.Add(time.Hour),
	}))

	svc := services.NewExclusionService(store, nil, eventbus.NoopPublisher{}, services.ExclusionServiceOptions{})
	auth := services.NewAuthService(testSecret)
	token, err := auth.IssueToken("supervisor@example.com", "supervisor", time.Hour)
	require.NoError(t, err)

	h := NewExclusionHandler(svc)
	r := gin.New()
	protected := r.Group("/")
	protected.Use(NewAuthMiddleware(auth).RequireAuth())
	protected.POST("/parishes/:parish_id/exclusions/detect", h.DetectExclusions)
	protected.POST("/parishes/:parish_id/exclusions/reconcile", h.ReconcileExclusions)
	protected.DELETE("/parishes/:parish_id/thresholds/cache", h.InvalidateThresholdCache)
	protected.POST("/calls/:id/exclusions/evaluate", h.EvaluateCall)
	protected.POST("/calls/:id/exclusions", h.ManualExclusion)
	protected.GET("/calls/:id/exclusions", h.GetExclusionHistory)

	return &exclusionFixture{engine: r, store: store, token: token}
}

func (f *exclusionFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestManualExclusionFlow(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "Unit out of service", Action: "exclude"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MANUAL", body["exclusion_type"])
	assert.Equal(t, "supervisor@example.com", body["excluded_by"])

	w, body = f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "again", Action: "exclude"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ledger.CodeAlreadyExcluded, body["code"])

	w, _ = f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "Re-reviewed", Action: "unexclude"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "Re-reviewed", Action: "unexclude"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ledger.CodeNotExcluded, body["code"])

	w, body = f.do(t, http.MethodGet, "/calls/1/exclusions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])
}

func TestManualExclusionValidation(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "   ", Action: "exclude"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "reason", body["field"])

	w, body = f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "x", Action: "archive"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "action", body["field"])

	w, _ = f.do(t, http.MethodPost, "/calls/abc/exclusions", db.ManualExclusionRequest{Reason: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/calls/99/exclusions", db.ManualExclusionRequest{Reason: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevertOfAutoExclusionIsConflict(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/calls/1/exclusions/evaluate?apply=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["excluded"])

	w, body = f.do(t, http.MethodPost, "/calls/1/exclusions", db.ManualExclusionRequest{Reason: "Re-reviewed", Action: "unexclude"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ledger.CodeNotManual, body["code"])

	call, err := f.store.GetCall(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, db.ExclusionAuto, call.ExclusionType)
}

func TestEvaluateCallRejectsBadApplyFlag(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/calls/1/exclusions/evaluate?apply=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "apply", body["field"])
}

func TestDetectExclusions(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/parishes/1/exclusions/detect", db.DetectRequest{StartDate: "2025-06-10", EndDate: "2025-06-10"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["evaluated"])
	assert.Equal(t, float64(1), body["excluded"])
	assert.Equal(t, false, body["applied"])

	excluded := body["excluded_calls"].([]any)
	require.Len(t, excluded, 1)
	assert.Equal(t, "WEATHER", excluded[0].(map[string]any)["strategy"])

	w, body = f.do(t, http.MethodPost, "/parishes/1/exclusions/detect", db.DetectRequest{StartDate: "June 10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "start_date", body["field"])

	w, _ = f.do(t, http.MethodPost, "/parishes/0/exclusions/detect", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileAndCacheInvalidation(t *testing.T) {
	f := newExclusionFixture(t)

	w, body := f.do(t, http.MethodPost, "/parishes/1/exclusions/reconcile", db.DetectRequest{StartDate: "2025-06-10", EndDate: "2025-06-10"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["released"])

	w, _ = f.do(t, http.MethodDelete, "/parishes/1/thresholds/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth(t *testing.T) {
	f := newExclusionFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/calls/1/exclusions", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/calls/1/exclusions", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
