package schema

import "time"

// HistoricalValue represents the historical_values table (the "offline" store) -
// the append-oriented time series of values observed per (entity, feature).
// IngestionTime records when the store learned the fact, distinct from the
// value's own Timestamp, so late corrections and backfill stay attributable.
type HistoricalValue struct {
	// EntityID is the caller-supplied identifier of the subject the value is about
	EntityID string `gorm:"column:entity_id;primaryKey;type:text;index:idx_historical_entity_time,priority:1" json:"entity_id"`
	// FeatureID references the feature definition the value belongs to
	FeatureID string `gorm:"column:feature_id;primaryKey;type:text" json:"feature_id"`
	// Timestamp is the observation time of the value
	Timestamp time.Time `gorm:"column:timestamp;primaryKey;index:idx_historical_entity_time,priority:2" json:"timestamp"`
	// Value is the JSON-serialized scalar
	Value string `gorm:"column:feature_value;type:text" json:"feature_value"`
	// IngestionTime is when this row was written
	IngestionTime time.Time `gorm:"column:ingestion_time;not null" json:"ingestion_time"`
}

// TableName specifies the table name for the HistoricalValue model
func (HistoricalValue) TableName() string {
	return "historical_values"
}
