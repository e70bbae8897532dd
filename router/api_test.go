package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/internal/ledger"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	store := ledger.NewInMemoryStore()
	return NewGinRouter(Services{
		Exclusions: services.NewExclusionService(store, nil, nil, services.ExclusionServiceOptions{}),
		Auth:       services.NewAuthService("router-test-secret"),
	})
}

func TestHealth(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter()

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/parishes/1/exclusions/detect"},
		{http.MethodPost, "/calls/1/exclusions"},
		{http.MethodGet, "/calls/1/exclusions"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(route.method, route.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestForecastRouteOnlyWithPostgres(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/forecast", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/calls/1/exclusions", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoleChecks(t *testing.T) {
	r := newTestRouter()
	auth := services.NewAuthService("router-test-secret")

	tests := []struct {
		name      string
		role      string
		method    string
		path      string
		forbidden bool
	}{
		{"analyst cannot override", "analyst", http.MethodPost, "/calls/1/exclusions", true},
		{"supervisor cannot reconcile", "supervisor", http.MethodPost, "/parishes/1/exclusions/reconcile", true},
		{"viewer cannot detect", "", http.MethodPost, "/parishes/1/exclusions/detect", true},
		{"viewer reads history", "", http.MethodGet, "/calls/1/exclusions", false},
		{"admin clears cache", "admin", http.MethodDelete, "/parishes/1/thresholds/cache", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := auth.IssueToken("user@example.com", tt.role, time.Hour)
			require.NoError(t, err)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if tt.forbidden {
				assert.Equal(t, http.StatusForbidden, w.Code)
			} else {
				assert.NotEqual(t, http.StatusForbidden, w.Code)
				assert.NotEqual(t, http.StatusUnauthorized, w.Code)
			}
		})
	}
}
