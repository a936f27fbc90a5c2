package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/serving"
)

// requestSource tags access-log entries produced by this API
const requestSource = "api"

// RefreshFunc triggers an out-of-band ingestion run
type RefreshFunc func(ctx context.Context) error

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetFeature retrieves the current value of one feature for one entity
	// GET /api/v1/features/:feature_name/entity/:entity_id
	GetFeature(c *gin.Context)

	// GetBatchFeatures retrieves several features for one entity
	// POST /api/v1/features/batch
	GetBatchFeatures(c *gin.Context)

	// GetHistoricalFeatures retrieves point-in-time rows for several entities
	// POST /api/v1/features/historical
	GetHistoricalFeatures(c *gin.Context)

	// ListFeatures lists the active feature catalog
	// GET /api/v1/metadata/features?group=<group_name>
	ListFeatures(c *gin.Context)

	// SearchFeatures searches active features by tags
	// GET /api/v1/metadata/features/search?tags=<tag1>,<tag2>
	SearchFeatures(c *gin.Context)

	// GetFeatureMetadata retrieves the full metadata of the current feature version
	// GET /api/v1/metadata/features/:feature_name
	GetFeatureMetadata(c *gin.Context)

	// GetStats reports operational counters
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// TriggerRefresh starts an ingestion run (requires API key authentication)
	// POST /api/v1/refresh
	TriggerRefresh(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	service *serving.Service
	clock   adapter.Clock
	refresh RefreshFunc
}

// NewHandler creates a new REST API handler over the serving service
func NewHandler(service *serving.Service, clock adapter.Clock, refresh RefreshFunc) Handler {
	return &handler{
		service: service,
		clock:   clock,
		refresh: refresh,
	}
}

// GetFeature retrieves the current value of one feature for one entity
func (h *handler) GetFeature(c *gin.Context) {
	featureName := c.Param("feature_name")
	entityID := c.Param("entity_id")
	if featureName == "" || entityID == "" {
		respondBadRequest(c, "Feature name and entity id are required")
		return
	}

	value, err := h.service.PointLookup(c.Request.Context(), featureName, entityID, requestSource)
	if err != nil {
		switch {
		case errors.Is(err, serving.ErrFeatureNotFound):
			respondNotFound(c, fmt.Sprintf("Feature '%s' not found", featureName))
		case errors.Is(err, serving.ErrValueNotFound):
			respondNotFound(c, fmt.Sprintf("Feature value not found for entity %s", entityID))
		case errors.Is(err, domain.ErrCorruptValue):
			respondWithError(c, http.StatusInternalServerError, errCodeCorruptValue,
				"Stored feature value is unreadable")
			logger.Error(err,
				zap.String("feature_name", featureName),
				zap.String("entity_id", entityID))
		default:
			respondInternalError(c, err, "Internal server error")
		}
		return
	}

	c.JSON(http.StatusOK, PointFeatureResponse{
		EntityID:     value.EntityID,
		FeatureName:  value.FeatureName,
		FeatureValue: value.Value,
		LastUpdated:  value.LastUpdated,
	})
}

// GetBatchFeatures retrieves several features for one entity. Unknown
// features and missing values are omitted from the response rather than
// failing the whole request.
func (h *handler) GetBatchFeatures(c *gin.Context) {
	var req BatchFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	features, err := h.service.BatchLookup(c.Request.Context(), req.EntityID, req.Features, requestSource)
	if err != nil {
		respondInternalError(c, err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, BatchFeatureResponse{
		EntityID:         req.EntityID,
		Features:         features,
		RequestTimestamp: h.clock.Now(),
	})
}

// GetHistoricalFeatures retrieves point-in-time rows for training datasets
func (h *handler) GetHistoricalFeatures(c *gin.Context) {
	var req HistoricalFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	entityIDs := make([]string, 0, len(req.EntityRows))
	for _, row := range req.EntityRows {
		entityIDs = append(entityIDs, row.EntityID)
	}

	var asOf *time.Time
	if req.TimestampRange != nil {
		asOf = req.TimestampRange.End
	}

	rows, err := h.service.HistoricalLookup(c.Request.Context(), entityIDs, req.Features, asOf, requestSource)
	if err != nil {
		respondInternalError(c, err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, HistoricalFeatureResponse{
		HistoricalFeatures: rows,
		RequestTimestamp:   h.clock.Now(),
		TotalEntities:      len(rows),
	})
}

// ListFeatures lists the active feature catalog, optionally scoped to a group
func (h *handler) ListFeatures(c *gin.Context) {
	defs, err := h.service.ListMetadata(c.Request.Context(), c.Query("group"))
	if err != nil {
		respondInternalError(c, err, "Internal server error")
		return
	}

	summaries := toFeatureSummaries(defs)
	c.JSON(http.StatusOK, ListFeaturesResponse{
		Features:   summaries,
		TotalCount: len(summaries),
	})
}

// SearchFeatures searches active features by tags (comma-separated, any match)
func (h *handler) SearchFeatures(c *gin.Context) {
	var tags []string
	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	defs, err := h.service.SearchMetadata(c.Request.Context(), tags)
	if err != nil {
		respondInternalError(c, err, "Internal server error")
		return
	}

	summaries := toFeatureSummaries(defs)
	c.JSON(http.StatusOK, SearchFeaturesResponse{
		Features:   summaries,
		SearchTags: tags,
		TotalCount: len(summaries),
	})
}

// GetFeatureMetadata retrieves the full metadata of the current feature version
func (h *handler) GetFeatureMetadata(c *gin.Context) {
	featureName := c.Param("feature_name")
	if featureName == "" {
		respondBadRequest(c, "Feature name is required")
		return
	}

	def, err := h.service.GetMetadata(c.Request.Context(), featureName)
	if err != nil {
		if errors.Is(err, serving.ErrFeatureNotFound) {
			respondNotFound(c, fmt.Sprintf("Feature '%s' not found", featureName))
			return
		}
		respondInternalError(c, err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, toFeatureDetail(def))
}

// GetStats reports operational counters across the store
func (h *handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, StatsResponse{
		StoreStats: *stats,
		Timestamp:  h.clock.Now(),
	})
}

// TriggerRefresh starts an ingestion run in the background and acknowledges
// immediately
func (h *handler) TriggerRefresh(c *gin.Context) {
	if h.refresh == nil {
		respondWithError(c, http.StatusServiceUnavailable, errCodeInternalError,
			"Refresh is not configured on this instance")
		return
	}

	go func() {
		if err := h.refresh(context.Background()); err != nil {
			logger.Error(err, zap.String("trigger", "api_refresh"))
		}
	}()

	c.JSON(http.StatusAccepted, RefreshResponse{
		Message:   "Feature refresh initiated",
		Timestamp: h.clock.Now(),
	})
}

// HealthCheck verifies the metadata store answers a real read
func (h *handler) HealthCheck(c *gin.Context) {
	count, err := h.service.Health(c.Request.Context())
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, errCodeInternalError,
			"Feature store unhealthy")
		logger.Error(err)
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:       "healthy",
		Timestamp:    h.clock.Now(),
		FeatureCount: count,
	})
}
