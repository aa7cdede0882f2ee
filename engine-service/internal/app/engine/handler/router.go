package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"
)

// SetupRoutes настраивает все маршруты Engine Service
func SetupRoutes(engineHandler *EngineHandler, healthHandler *HealthCheckHandler, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())

	// JSON logging middleware для HTTP-запросов
	router.Use(logger.GinLoggerMiddleware())

	router.Use(metrics.GinPrometheusMiddleware("engine-service"))

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"https://*", "http://*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowWildcard:    true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/health/live", healthHandler.Liveness)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		products := api.Group("/products")
		{
			products.GET("", engineHandler.ListProducts)
			products.POST("", engineHandler.RegisterProduct)
			products.GET("/:id", engineHandler.GetProduct)
			// Наблюдение цены сразу прогоняет правила
			products.POST("/:id/prices", engineHandler.RecordPrice)
			products.GET("/:id/prices", engineHandler.GetLedger)
			products.POST("/:id/recommendations/refresh", engineHandler.RefreshProductRecommendations)
		}

		api.POST("/retailers", engineHandler.RegisterRetailer)

		tracking := api.Group("/tracking")
		{
			tracking.GET("", engineHandler.ListTracking)
			tracking.POST("", engineHandler.StartTracking)
			tracking.GET("/:id", engineHandler.GetTracking)
			tracking.DELETE("/:id", engineHandler.StopTracking)
		}

		budget := api.Group("/budget")
		{
			budget.GET("", engineHandler.GetBudget)
			budget.PUT("", engineHandler.SetBudget)
			budget.POST("/spend", engineHandler.RecordSpend)
			budget.POST("/rollover", engineHandler.RolloverBudget)
		}

		inventory := api.Group("/inventory")
		{
			inventory.GET("", engineHandler.ListInventory)
			inventory.POST("", engineHandler.AddInventoryItem)
			inventory.POST("/:product_id/purchase", engineHandler.RecordPurchase)
			inventory.POST("/:product_id/consume", engineHandler.RecordConsumption)
		}

		api.GET("/alerts", engineHandler.ListAlerts)
		api.GET("/recommendations", engineHandler.GetRecommendations)
		api.POST("/recommendations/inventory/refresh", engineHandler.RefreshInventoryRecommendations)
		api.GET("/dashboard/digest", engineHandler.GetDigest)
		api.GET("/status", engineHandler.GetStatus)
		api.GET("/events", engineHandler.StreamEvents)
	}

	return router
}
