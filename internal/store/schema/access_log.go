package schema

import (
	"time"

	"github.com/meridianml/feature-store/internal/domain"
)

// AccessLog represents the access_logs table - an append-only, advisory
// ledger of feature reads. Losing an entry must never fail the read it
// describes.
type AccessLog struct {
	// LogID is a unique, time-sortable identifier
	LogID string `gorm:"column:log_id;primaryKey;type:text" json:"log_id"`
	// FeatureID is the feature that was read
	FeatureID string `gorm:"column:feature_id;type:text" json:"feature_id"`
	// EntityID is the entity the read was about
	EntityID string `gorm:"column:entity_id;type:text" json:"entity_id"`
	// AccessType is one of: point, batch, historical
	AccessType domain.AccessType `gorm:"column:access_type;type:text" json:"access_type"`
	// AccessTime is when the read happened
	AccessTime time.Time `gorm:"column:access_time;not null;index:idx_access_logs_time" json:"access_time"`
	// RequestSource identifies the caller surface (e.g., "api")
	RequestSource string `gorm:"column:request_source;type:text" json:"request_source"`
	// ResponseTimeMs is the observed handler latency, when measured
	ResponseTimeMs *int64 `gorm:"column:response_time_ms" json:"response_time_ms,omitempty"`
}

// TableName specifies the table name for the AccessLog model
func (AccessLog) TableName() string {
	return "access_logs"
}
