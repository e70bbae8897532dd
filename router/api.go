package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tylerweaver-alt/compliance-dashboard-sub002/authz"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/handlers"
	"github.com/tylerweaver-alt/compliance-dashboard-sub002/services"
)

// Services are the dependencies the HTTP surface is built from.
// Forecast is nil in SQLite lite mode.
type Services struct {
	Exclusions *services.ExclusionService
	Forecast   *services.ForecastService
	Auth       *services.AuthService
}

func NewGinRouter(svc Services) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Initialize handlers
	exclusionHandler := handlers.NewExclusionHandler(svc.Exclusions)
	authMiddleware := handlers.NewAuthMiddleware(svc.Auth)

	// PUBLIC ENDPOINTS (no authentication required)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// PROTECTED ENDPOINTS (require a bearer token)
	protected := r.Group("/")
	protected.Use(authMiddleware.RequireAuth())
	{
		parishRoutes := protected.Group("/parishes/:parish_id")
		{
			parishRoutes.POST("/exclusions/detect", authz.RequireAction(authz.ActionEvaluate), exclusionHandler.DetectExclusions)
			parishRoutes.POST("/exclusions/reconcile", authz.RequireAction(authz.ActionManage), exclusionHandler.ReconcileExclusions)
			parishRoutes.DELETE("/thresholds/cache", authz.RequireAction(authz.ActionManage), exclusionHandler.InvalidateThresholdCache)
		}

		callRoutes := protected.Group("/calls/:id")
		{
			callRoutes.POST("/exclusions/evaluate", authz.RequireAction(authz.ActionEvaluate), exclusionHandler.EvaluateCall)
			callRoutes.POST("/exclusions", authz.RequireAction(authz.ActionOverride), exclusionHandler.ManualExclusion)
			callRoutes.GET("/exclusions", authz.RequireAction(authz.ActionView), exclusionHandler.GetExclusionHistory)
		}

		if svc.Forecast != nil {
			forecastHandler := handlers.NewForecastHandler(svc.Forecast)
			protected.POST("/forecast", authz.RequireAction(authz.ActionEvaluate), forecastHandler.RunForecast)
		}
	}

	return r
}
