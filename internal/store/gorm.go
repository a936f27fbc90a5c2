package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meridianml/feature-store/internal/store/schema"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new store instance over an opened gorm database
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// Migrate creates or updates the feature-store tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.FeatureGroup{},
		&schema.FeatureDefinition{},
		&schema.CurrentValue{},
		&schema.HistoricalValue{},
		&schema.AccessLog{},
		&schema.QualityMetric{},
	)
}

// UpsertFeatureGroup inserts or replaces a feature group keyed by its derived id
func (s *gormStore) UpsertFeatureGroup(ctx context.Context, group *schema.FeatureGroup) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "source_table", "updated_at"}),
	}).Create(group).Error
	if err != nil {
		return fmt.Errorf("failed to upsert feature group: %w", err)
	}
	return nil
}

// GetFeatureGroupByName retrieves a feature group by its unique name
func (s *gormStore) GetFeatureGroupByName(ctx context.Context, name string) (*schema.FeatureGroup, error) {
	var group schema.FeatureGroup
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature group: %w", err)
	}
	return &group, nil
}

// ListFeatureGroups retrieves all feature groups ordered by name
func (s *gormStore) ListFeatureGroups(ctx context.Context) ([]schema.FeatureGroup, error) {
	var groups []schema.FeatureGroup
	err := s.db.WithContext(ctx).Order("name").Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feature groups: %w", err)
	}
	return groups, nil
}

// UpsertFeatureDefinition inserts or replaces a feature definition keyed by its derived id
func (s *gormStore) UpsertFeatureDefinition(ctx context.Context, def *schema.FeatureDefinition) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "data_type", "source_table", "source_column",
			"created_by", "tags", "is_active", "last_updated",
		}),
	}).Create(def).Error
	if err != nil {
		return fmt.Errorf("failed to upsert feature definition: %w", err)
	}
	return nil
}

// GetFeatureDefinition retrieves a definition by feature id
func (s *gormStore) GetFeatureDefinition(ctx context.Context, featureID string) (*schema.FeatureDefinition, error) {
	var def schema.FeatureDefinition
	err := s.db.WithContext(ctx).Where("feature_id = ?", featureID).First(&def).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature definition: %w", err)
	}
	return &def, nil
}

// ListActiveDefinitionsByName retrieves every active definition sharing a feature name
func (s *gormStore) ListActiveDefinitionsByName(ctx context.Context, name string) ([]schema.FeatureDefinition, error) {
	var defs []schema.FeatureDefinition
	err := s.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions by name: %w", err)
	}
	return defs, nil
}

// ListActiveDefinitions retrieves active definitions ordered by group then name
func (s *gormStore) ListActiveDefinitions(ctx context.Context, groupID string) ([]schema.FeatureDefinition, error) {
	query := s.db.WithContext(ctx).Where("is_active = ?", true)
	if groupID != "" {
		query = query.Where("feature_group_id = ?", groupID)
	}

	var defs []schema.FeatureDefinition
	err := query.Order("feature_group_id, name, version").Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active definitions: %w", err)
	}
	return defs, nil
}

// UpdateDefinitionStatistics overwrites the statistics snapshot of a definition
func (s *gormStore) UpdateDefinitionStatistics(ctx context.Context, featureID string, stats datatypes.JSON, updatedAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.FeatureDefinition{}).
		Where("feature_id = ?", featureID).
		Updates(map[string]any{
			"statistics":   stats,
			"last_updated": updatedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update statistics: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CountActiveDefinitions counts active feature definitions
func (s *gormStore) CountActiveDefinitions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.FeatureDefinition{}).
		Where("is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active definitions: %w", err)
	}
	return count, nil
}

// CountActiveDefinitionsByGroup counts active definitions per owning group
func (s *gormStore) CountActiveDefinitionsByGroup(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		GroupID string `gorm:"column:feature_group_id"`
		Count   int64  `gorm:"column:count"`
	}
	err := s.db.WithContext(ctx).
		Model(&schema.FeatureDefinition{}).
		Select("feature_group_id, COUNT(*) as count").
		Where("is_active = ?", true).
		Group("feature_group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count definitions by group: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.GroupID] = row.Count
	}
	return counts, nil
}

// UpsertCurrentValue replaces or inserts the (entity, feature) row in the online store
func (s *gormStore) UpsertCurrentValue(ctx context.Context, entityID, featureID, value string, observedAt time.Time) error {
	return upsertCurrent(s.db.WithContext(ctx), entityID, featureID, value, observedAt)
}

// AppendHistoricalValue inserts or idempotently replaces the (entity, feature, timestamp) row
func (s *gormStore) AppendHistoricalValue(ctx context.Context, entityID, featureID, value string, timestamp time.Time) error {
	return appendHistorical(s.db.WithContext(ctx), entityID, featureID, value, timestamp)
}

// WriteFact performs the current-store upsert and the historical append in a
// single transaction so concurrent readers never observe a half-written pair
func (s *gormStore) WriteFact(ctx context.Context, entityID, featureID, value string, observedAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertCurrent(tx, entityID, featureID, value, observedAt); err != nil {
			return err
		}
		return appendHistorical(tx, entityID, featureID, value, observedAt)
	})
}

func upsertCurrent(tx *gorm.DB, entityID, featureID, value string, observedAt time.Time) error {
	row := schema.CurrentValue{
		EntityID:    entityID,
		FeatureID:   featureID,
		Value:       value,
		LastUpdated: observedAt,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "feature_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"feature_value", "last_updated"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert current value: %w", err)
	}
	return nil
}

func appendHistorical(tx *gorm.DB, entityID, featureID, value string, timestamp time.Time) error {
	row := schema.HistoricalValue{
		EntityID:      entityID,
		FeatureID:     featureID,
		Timestamp:     timestamp,
		Value:         value,
		IngestionTime: time.Now().UTC(),
	}
	// Re-ingestion of the same source data must be safe to repeat, so an
	// identical key replaces rather than duplicates.
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entity_id"}, {Name: "feature_id"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{"feature_value", "ingestion_time"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to append historical value: %w", err)
	}
	return nil
}

// GetCurrentValue retrieves the latest known value for (entity, feature)
func (s *gormStore) GetCurrentValue(ctx context.Context, entityID, featureID string) (*schema.CurrentValue, error) {
	var row schema.CurrentValue
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND feature_id = ?", entityID, featureID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current value: %w", err)
	}
	return &row, nil
}

// GetLatestHistorical retrieves the most recent historical row for (entity, feature),
// bounded by asOf when non-nil
func (s *gormStore) GetLatestHistorical(ctx context.Context, entityID, featureID string, asOf *time.Time) (*schema.HistoricalValue, error) {
	query := s.db.WithContext(ctx).
		Where("entity_id = ? AND feature_id = ?", entityID, featureID)
	if asOf != nil {
		query = query.Where("timestamp <= ?", *asOf)
	}

	var row schema.HistoricalValue
	err := query.Order("timestamp DESC").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get historical value: %w", err)
	}
	return &row, nil
}

// ListCurrentValuesByFeature retrieves every online row for a feature
func (s *gormStore) ListCurrentValuesByFeature(ctx context.Context, featureID string) ([]schema.CurrentValue, error) {
	var rows []schema.CurrentValue
	err := s.db.WithContext(ctx).
		Where("feature_id = ?", featureID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list current values: %w", err)
	}
	return rows, nil
}

// CountDistinctEntities counts distinct entities present in the online store
func (s *gormStore) CountDistinctEntities(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.CurrentValue{}).
		Distinct("entity_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct entities: %w", err)
	}
	return count, nil
}

// CountCurrentValues counts the total online store rows
func (s *gormStore) CountCurrentValues(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.CurrentValue{}).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count current values: %w", err)
	}
	return count, nil
}

// CountHistoricalValues counts historical rows for (entity, feature)
func (s *gormStore) CountHistoricalValues(ctx context.Context, entityID, featureID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.HistoricalValue{}).
		Where("entity_id = ? AND feature_id = ?", entityID, featureID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count historical values: %w", err)
	}
	return count, nil
}

// AppendAccessLog appends an access-log entry
func (s *gormStore) AppendAccessLog(ctx context.Context, entry *schema.AccessLog) error {
	err := s.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

// CountAccessSince counts access-log entries with access_time at or after since
func (s *gormStore) CountAccessSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.AccessLog{}).
		Where("access_time >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count access logs: %w", err)
	}
	return count, nil
}

// RecordQualityMetric appends a quality metric measurement
func (s *gormStore) RecordQualityMetric(ctx context.Context, metric *schema.QualityMetric) error {
	err := s.db.WithContext(ctx).Create(metric).Error
	if err != nil {
		return fmt.Errorf("failed to record quality metric: %w", err)
	}
	return nil
}
