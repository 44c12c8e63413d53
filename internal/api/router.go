package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/config"
	"github.com/mobistudy/indicators-backend-go/internal/handler"
	"github.com/mobistudy/indicators-backend-go/internal/middleware"
)

// Handlers groups the HTTP handlers mounted under /api/v1
type Handlers struct {
	Runs       *handler.RunHandler
	Indicators *handler.IndicatorHandler
}

// SetupRouter sets up routes
func SetupRouter(cfg *config.Config, h Handlers, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Indicators engine is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	{
		producers := api.Group("/producers")
		{
			producers.GET("", h.Runs.ListProducers)
			producers.POST("/:producer/runs", h.Runs.TriggerRun)
		}

		runs := api.Group("/runs")
		{
			runs.GET("", h.Runs.ListRuns)
			runs.GET("/:id", h.Runs.GetRun)
		}

		api.GET("/indicators", h.Indicators.ListIndicators)
	}

	return r
}
