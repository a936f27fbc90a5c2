package schema

import "time"

// QualityMetric represents the quality_metrics table - an append-only series
// of per-feature quality snapshots written by the statistics engine
type QualityMetric struct {
	// MetricID is a unique identifier for the measurement
	MetricID string `gorm:"column:metric_id;primaryKey;type:text" json:"metric_id"`
	// FeatureID is the feature the measurement is about
	FeatureID string `gorm:"column:feature_id;not null;type:text;index:idx_quality_metrics_feature" json:"feature_id"`
	// MetricName names the measurement (e.g., "value_count", "corrupt_count")
	MetricName string `gorm:"column:metric_name;not null;type:text" json:"metric_name"`
	// MetricValue is the numeric measurement
	MetricValue float64 `gorm:"column:metric_value;not null" json:"metric_value"`
	// MeasurementTime is when the measurement was taken
	MeasurementTime time.Time `gorm:"column:measurement_time;not null;index:idx_quality_metrics_time" json:"measurement_time"`
}

// TableName specifies the table name for the QualityMetric model
func (QualityMetric) TableName() string {
	return "quality_metrics"
}
