package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/meridianml/feature-store/internal/domain"
)

// FeatureDefinition represents the features_metadata table - the source of
// truth for what features exist, their types, versions and lineage
type FeatureDefinition struct {
	// FeatureID is derived deterministically from group + name + version and is immutable once created
	FeatureID string `gorm:"column:feature_id;primaryKey;type:text" json:"feature_id"`
	// Name is the feature name; multiple versions may share it within a group
	Name string `gorm:"column:name;not null;type:text;index:idx_features_name" json:"name"`
	// Description explains what the feature measures
	Description string `gorm:"column:description;type:text" json:"description"`
	// GroupID references the owning feature group
	GroupID string `gorm:"column:feature_group_id;not null;type:text;index:idx_features_group" json:"feature_group"`
	// DataType is one of: float, integer, string, boolean, category
	DataType domain.DataType `gorm:"column:data_type;not null;type:text" json:"data_type"`
	// Version is a dotted version string (e.g., "1.0")
	Version string `gorm:"column:version;not null;default:'1.0';type:text" json:"version"`
	// SourceTable is the upstream table this feature was derived from
	SourceTable string `gorm:"column:source_table;type:text" json:"source_table"`
	// SourceColumn is the upstream column this feature was derived from
	SourceColumn string `gorm:"column:source_column;type:text" json:"source_column"`
	// CreatedBy records which process registered the definition
	CreatedBy string `gorm:"column:created_by;type:text" json:"created_by"`
	// Tags is a JSON array of free-form labels used by tag search
	Tags datatypes.JSON `gorm:"column:tags" json:"tags"`
	// Statistics is the optional aggregate snapshot attached by the statistics engine
	Statistics datatypes.JSON `gorm:"column:statistics" json:"statistics,omitempty"`
	// QualityMetrics is an optional JSON snapshot of quality measurements
	QualityMetrics datatypes.JSON `gorm:"column:quality_metrics" json:"quality_metrics,omitempty"`
	// ValidationRules is an optional JSON document of per-feature validation rules
	ValidationRules datatypes.JSON `gorm:"column:validation_rules" json:"validation_rules,omitempty"`
	// IsActive marks whether this version participates in name-only resolution
	IsActive bool `gorm:"column:is_active;not null;default:true" json:"is_active"`
	// CreatedAt is the timestamp when this version was first registered
	CreatedAt time.Time `gorm:"column:creation_date;not null" json:"creation_date"`
	// UpdatedAt is refreshed on re-registration and statistics attachment
	UpdatedAt time.Time `gorm:"column:last_updated;not null" json:"last_updated"`

	// Associations
	Group FeatureGroup `gorm:"foreignKey:GroupID;references:GroupID" json:"-"`
}

// TableName specifies the table name for the FeatureDefinition model
func (FeatureDefinition) TableName() string {
	return "features_metadata"
}
