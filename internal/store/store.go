package store

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/meridianml/feature-store/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	// UpsertFeatureGroup inserts or replaces a feature group keyed by its derived id
	UpsertFeatureGroup(ctx context.Context, group *schema.FeatureGroup) error
	// GetFeatureGroupByName retrieves a feature group by its unique name (nil when absent)
	GetFeatureGroupByName(ctx context.Context, name string) (*schema.FeatureGroup, error)
	// ListFeatureGroups retrieves all feature groups ordered by name
	ListFeatureGroups(ctx context.Context) ([]schema.FeatureGroup, error)

	// UpsertFeatureDefinition inserts or replaces a feature definition keyed by its derived id
	UpsertFeatureDefinition(ctx context.Context, def *schema.FeatureDefinition) error
	// GetFeatureDefinition retrieves a definition by feature id (nil when absent)
	GetFeatureDefinition(ctx context.Context, featureID string) (*schema.FeatureDefinition, error)
	// ListActiveDefinitionsByName retrieves every active definition sharing a feature name
	ListActiveDefinitionsByName(ctx context.Context, name string) ([]schema.FeatureDefinition, error)
	// ListActiveDefinitions retrieves active definitions, optionally filtered by
	// group id, ordered by group then name
	ListActiveDefinitions(ctx context.Context, groupID string) ([]schema.FeatureDefinition, error)
	// UpdateDefinitionStatistics overwrites the statistics snapshot of a definition.
	// Returns false when the feature id is unknown.
	UpdateDefinitionStatistics(ctx context.Context, featureID string, stats datatypes.JSON, updatedAt time.Time) (bool, error)
	// CountActiveDefinitions counts active feature definitions
	CountActiveDefinitions(ctx context.Context) (int64, error)
	// CountActiveDefinitionsByGroup counts active definitions per owning group
	CountActiveDefinitionsByGroup(ctx context.Context) (map[string]int64, error)

	// UpsertCurrentValue replaces or inserts the (entity, feature) row in the online store
	UpsertCurrentValue(ctx context.Context, entityID, featureID, value string, observedAt time.Time) error
	// AppendHistoricalValue inserts or idempotently replaces the (entity, feature, timestamp) row
	AppendHistoricalValue(ctx context.Context, entityID, featureID, value string, timestamp time.Time) error
	// WriteFact performs UpsertCurrentValue and AppendHistoricalValue as one
	// atomic unit - either both stores see the fact or neither does
	WriteFact(ctx context.Context, entityID, featureID, value string, observedAt time.Time) error
	// GetCurrentValue retrieves the latest known value for (entity, feature); nil when absent
	GetCurrentValue(ctx context.Context, entityID, featureID string) (*schema.CurrentValue, error)
	// GetLatestHistorical retrieves the most recent historical row for
	// (entity, feature), bounded by asOf when non-nil; nil when absent
	GetLatestHistorical(ctx context.Context, entityID, featureID string, asOf *time.Time) (*schema.HistoricalValue, error)
	// ListCurrentValuesByFeature retrieves every online row for a feature
	ListCurrentValuesByFeature(ctx context.Context, featureID string) ([]schema.CurrentValue, error)
	// CountDistinctEntities counts distinct entities present in the online store
	CountDistinctEntities(ctx context.Context) (int64, error)
	// CountCurrentValues counts the total online store rows
	CountCurrentValues(ctx context.Context) (int64, error)
	// CountHistoricalValues counts historical rows for (entity, feature)
	CountHistoricalValues(ctx context.Context, entityID, featureID string) (int64, error)

	// AppendAccessLog appends an access-log entry
	AppendAccessLog(ctx context.Context, entry *schema.AccessLog) error
	// CountAccessSince counts access-log entries with access_time at or after since
	CountAccessSince(ctx context.Context, since time.Time) (int64, error)
	// RecordQualityMetric appends a quality metric measurement
	RecordQualityMetric(ctx context.Context, metric *schema.QualityMetric) error
}
