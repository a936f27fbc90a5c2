package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/meridianml/feature-store/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Online serving endpoints (public read access)
		v1.GET("/features/:feature_name/entity/:entity_id", handler.GetFeature)
		v1.POST("/features/batch", handler.GetBatchFeatures)
		v1.POST("/features/historical", handler.GetHistoricalFeatures)

		// Metadata catalog endpoints (public read access)
		v1.GET("/metadata/features", handler.ListFeatures)
		v1.GET("/metadata/features/search", handler.SearchFeatures)
		v1.GET("/metadata/features/:feature_name", handler.GetFeatureMetadata)

		// Operational stats endpoint (public read access)
		v1.GET("/stats", handler.GetStats)

		// Refresh trigger (requires API key authentication)
		v1.POST("/refresh", middleware.APIKeyAuth(authCfg), handler.TriggerRefresh)
	}
}
