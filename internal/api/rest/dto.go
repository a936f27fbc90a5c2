package rest

import (
	"encoding/json"
	"time"

	"github.com/meridianml/feature-store/internal/serving"
	"github.com/meridianml/feature-store/internal/store/schema"
)

// BatchFeatureRequest asks for several features of one entity
type BatchFeatureRequest struct {
	EntityID string   `json:"entity_id" binding:"required"`
	Features []string `json:"features" binding:"required,min=1"`
}

// EntityRow identifies one entity in a historical request
type EntityRow struct {
	EntityID string `json:"entity_id" binding:"required"`
}

// TimestampRange optionally bounds a historical request. Only the end bound
// affects resolution; values after End are invisible to the response.
type TimestampRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// HistoricalFeatureRequest asks for point-in-time rows for several entities
type HistoricalFeatureRequest struct {
	EntityRows     []EntityRow     `json:"entity_rows" binding:"required,min=1"`
	Features       []string        `json:"features" binding:"required,min=1"`
	TimestampRange *TimestampRange `json:"timestamp_range,omitempty"`
}

// PointFeatureResponse is the payload of a single-feature lookup
type PointFeatureResponse struct {
	EntityID     string    `json:"entity_id"`
	FeatureName  string    `json:"feature_name"`
	FeatureValue any       `json:"feature_value"`
	LastUpdated  time.Time `json:"last_updated"`
}

// BatchFeatureResponse is the payload of a batch lookup
type BatchFeatureResponse struct {
	EntityID         string                        `json:"entity_id"`
	Features         map[string]serving.BatchEntry `json:"features"`
	RequestTimestamp time.Time                     `json:"request_timestamp"`
}

// HistoricalFeatureResponse is the payload of a historical lookup
type HistoricalFeatureResponse struct {
	HistoricalFeatures []serving.HistoricalRow `json:"historical_features"`
	RequestTimestamp   time.Time               `json:"request_timestamp"`
	TotalEntities      int                     `json:"total_entities"`
}

// FeatureSummary is the catalog listing shape of a feature definition
type FeatureSummary struct {
	FeatureID    string   `json:"feature_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	FeatureGroup string   `json:"feature_group"`
	DataType     string   `json:"data_type"`
	Version      string   `json:"version"`
	SourceTable  string   `json:"source_table"`
	SourceColumn string   `json:"source_column"`
	Tags         []string `json:"tags"`
}

// FeatureDetail extends the summary with lifecycle fields and attached snapshots
type FeatureDetail struct {
	FeatureSummary
	Statistics     json.RawMessage `json:"statistics"`
	QualityMetrics json.RawMessage `json:"quality_metrics"`
	CreationDate   time.Time       `json:"creation_date"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// ListFeaturesResponse is the payload of the catalog listing
type ListFeaturesResponse struct {
	Features   []FeatureSummary `json:"features"`
	TotalCount int              `json:"total_count"`
}

// SearchFeaturesResponse is the payload of a tag search
type SearchFeaturesResponse struct {
	Features   []FeatureSummary `json:"features"`
	SearchTags []string         `json:"search_tags"`
	TotalCount int              `json:"total_count"`
}

// StatsResponse is the payload of the operational stats endpoint
type StatsResponse struct {
	serving.StoreStats
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the payload of the health endpoint
type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	FeatureCount int64     `json:"feature_count"`
}

// RefreshResponse acknowledges an accepted refresh trigger
type RefreshResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// toFeatureSummary maps a stored definition to its catalog shape
func toFeatureSummary(def *schema.FeatureDefinition) FeatureSummary {
	tags := []string{}
	if len(def.Tags) > 0 {
		// Unreadable tags degrade to an empty list rather than failing the response
		_ = json.Unmarshal(def.Tags, &tags)
	}
	return FeatureSummary{
		FeatureID:    def.FeatureID,
		Name:         def.Name,
		Description:  def.Description,
		FeatureGroup: def.GroupID,
		DataType:     string(def.DataType),
		Version:      def.Version,
		SourceTable:  def.SourceTable,
		SourceColumn: def.SourceColumn,
		Tags:         tags,
	}
}

// toFeatureDetail maps a stored definition to its full metadata shape
func toFeatureDetail(def *schema.FeatureDefinition) FeatureDetail {
	detail := FeatureDetail{
		FeatureSummary: toFeatureSummary(def),
		CreationDate:   def.CreatedAt,
		LastUpdated:    def.UpdatedAt,
	}
	if len(def.Statistics) > 0 {
		detail.Statistics = json.RawMessage(def.Statistics)
	}
	if len(def.QualityMetrics) > 0 {
		detail.QualityMetrics = json.RawMessage(def.QualityMetrics)
	}
	return detail
}

func toFeatureSummaries(defs []schema.FeatureDefinition) []FeatureSummary {
	summaries := make([]FeatureSummary, 0, len(defs))
	for i := range defs {
		summaries = append(summaries, toFeatureSummary(&defs[i]))
	}
	return summaries
}
