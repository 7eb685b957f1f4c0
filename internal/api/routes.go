package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fintrack/insight-engine/internal/api/handlers"
	"github.com/fintrack/insight-engine/internal/config"
	"github.com/fintrack/insight-engine/internal/ml"
	"github.com/fintrack/insight-engine/internal/services"
)

// SetupRoutes wires middleware and the endpoint surface onto the router.
func SetupRoutes(router *gin.Engine, cfg *config.Config, logger *logrus.Logger, modelService *ml.ModelService, insightService *services.InsightService) {
	router.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	if cfg.Telemetry.Enabled {
		router.Use(otelgin.Middleware("insight-engine"))
	}

	healthHandler := handlers.NewHealthHandler(modelService, "1.0.0")
	modelHandler := handlers.NewModelHandler(modelService, logger)
	insightHandler := handlers.NewInsightHandler(insightService, logger)

	router.GET("/health", healthHandler.Check)

	v1 := router.Group("/api/v1")
	{
		insights := v1.Group("/insights")
		{
			insights.POST("/generate", insightHandler.Generate)
		}

		model := v1.Group("/models")
		{
			model.POST("/train", modelHandler.Train)
			model.POST("/predict-category", modelHandler.PredictCategory)
			model.POST("/detect-anomalies", modelHandler.DetectAnomalies)
			model.POST("/save", modelHandler.Save)
			model.POST("/load", modelHandler.Load)
		}
	}
}

// corsMiddleware mirrors the permissive CORS setup of the tracker backend;
// origins come from config so deployments can narrow them.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		default:
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
