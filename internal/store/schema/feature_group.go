package schema

import "time"

// FeatureGroup represents the feature_groups table - a named collection of
// related feature definitions sharing lineage into the upstream analytical store
type FeatureGroup struct {
	// GroupID is the stable identifier derived from the group name (e.g., "fg_customer_financial")
	GroupID string `gorm:"column:group_id;primaryKey;type:text" json:"group_id"`
	// Name is the unique human-readable group name
	Name string `gorm:"column:name;not null;uniqueIndex;type:text" json:"name"`
	// Description explains what the group's features describe
	Description string `gorm:"column:description;type:text" json:"description"`
	// SourceTable is the lineage pointer into the upstream analytical store
	SourceTable string `gorm:"column:source_table;type:text" json:"source_table"`
	// CreatedAt is the timestamp when the group was first registered
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	// UpdatedAt is refreshed on every (idempotent) re-registration
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName specifies the table name for the FeatureGroup model
func (FeatureGroup) TableName() string {
	return "feature_groups"
}
