package schema

import "time"

// CurrentValue represents the current_values table (the "online" store) -
// at most one row per (entity, feature) holding the latest known value
type CurrentValue struct {
	// EntityID is the caller-supplied identifier of the subject the value is about
	EntityID string `gorm:"column:entity_id;primaryKey;type:text;index:idx_current_entity" json:"entity_id"`
	// FeatureID references the feature definition the value belongs to
	FeatureID string `gorm:"column:feature_id;primaryKey;type:text" json:"feature_id"`
	// Value is the JSON-serialized scalar
	Value string `gorm:"column:feature_value;type:text" json:"feature_value"`
	// LastUpdated is the observation time of the value currently held
	LastUpdated time.Time `gorm:"column:last_updated;not null" json:"last_updated"`
}

// TableName specifies the table name for the CurrentValue model
func (CurrentValue) TableName() string {
	return "current_values"
}
