package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

func TestRunForecast(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db, mockDB, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	handler := NewForecastHandler(services.NewForecastService(db))
	r := gin.New()
	r.POST("/forecast", handler.RunForecast)

	t.Run("NoHistory", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT queue_time").WillReturnRows(sqlmock.NewRows([]string{"queue_time"}))

		body := `{"parish_id": 3, "start": "2025-07-01T00:00:00Z", "end": "2025-07-01T05:00:00Z", "granularity": "global"}`
		req := httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","summary":{"message":"No data"}}`, w.Body.String())
	})

	t.Run("MissingFields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(`{"parish_id": 3}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("EndBeforeStart", func(t *testing.T) {
		body := `{"parish_id": 3, "start": "2025-07-01T05:00:00Z", "end": "2025-07-01T00:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/forecast", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), `"field":"end"`)
	})

	assert.NoError(t, mockDB.ExpectationsWereMet())
}
