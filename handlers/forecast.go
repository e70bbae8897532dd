package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/db"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

type ForecastHandler struct {
	forecastService *services.ForecastService
}

func NewForecastHandler(forecastService *services.ForecastService) *ForecastHandler {
	return &ForecastHandler{forecastService: forecastService}
}

// RunForecast writes an hourly call-volume forecast for a parish
func (h *ForecastHandler) RunForecast(c *gin.Context) {
	var req db.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	summary, err := h.forecastService.GenerateForecast(c.Request.Context(), req)
	if err != nil {
		respondLedgerError(c, err, "Failed to generate forecast")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "summary": summary})
}
