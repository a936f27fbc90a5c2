package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/store/schema"
)

var testDB *gorm.DB

// TestMain sets up an embedded in-memory database shared by the package tests
func TestMain(m *testing.M) {
	var err error
	testDB, err = Open(DriverSQLite, ":memory:")
	if err != nil {
		fmt.Printf("Failed to open test database: %v\n", err)
		os.Exit(1)
	}

	// Every connection to :memory: is a separate database, so pin to one.
	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Printf("Failed to get sql.DB: %v\n", err)
		os.Exit(1)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(testDB); err != nil {
		fmt.Printf("Failed to migrate test database: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func cleanTables(t *testing.T) {
	t.Helper()
	for _, table := range []string{
		"quality_metrics", "access_logs", "historical_values",
		"current_values", "features_metadata", "feature_groups",
	} {
		require.NoError(t, testDB.Exec("DELETE FROM "+table).Error)
	}
}

func seedDefinition(t *testing.T, store Store, group, name, version string, dataType domain.DataType) *schema.FeatureDefinition {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	g := &schema.FeatureGroup{
		GroupID:   domain.GroupID(group),
		Name:      group,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertFeatureGroup(ctx, g))

	def := &schema.FeatureDefinition{
		FeatureID: domain.FeatureID(group, name, version),
		Name:      name,
		GroupID:   g.GroupID,
		DataType:  dataType,
		Version:   version,
		Tags:      datatypes.JSON([]byte(`[]`)),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertFeatureDefinition(ctx, def))
	return def
}

func TestWriteFactOrdering(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)
	def := seedDefinition(t, s, "customer_financial", "balance_mean", "1.0", domain.DataTypeFloat)

	t1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	v1, err := EncodeValue(150.5)
	require.NoError(t, err)
	v2, err := EncodeValue(200.0)
	require.NoError(t, err)

	require.NoError(t, s.WriteFact(ctx, "42", def.FeatureID, v1, t1))
	require.NoError(t, s.WriteFact(ctx, "42", def.FeatureID, v2, t2))

	// Current store holds the later write
	current, err := s.GetCurrentValue(ctx, "42", def.FeatureID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, v2, current.Value)
	assert.True(t, current.LastUpdated.Equal(t2))

	// Latest historical matches the later write
	latest, err := s.GetLatestHistorical(ctx, "42", def.FeatureID, nil)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, v2, latest.Value)
	assert.True(t, latest.Timestamp.Equal(t2))

	// Bounded by asOf=t1, the earlier fact is still visible
	asOf := t1
	earlier, err := s.GetLatestHistorical(ctx, "42", def.FeatureID, &asOf)
	require.NoError(t, err)
	require.NotNil(t, earlier)
	assert.Equal(t, v1, earlier.Value)
	assert.True(t, earlier.Timestamp.Equal(t1))
}

func TestWriteFactIdempotence(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)
	def := seedDefinition(t, s, "customer_financial", "balance_mean", "1.0", domain.DataTypeFloat)

	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	value, err := EncodeValue(150.5)
	require.NoError(t, err)

	require.NoError(t, s.WriteFact(ctx, "42", def.FeatureID, value, ts))
	require.NoError(t, s.WriteFact(ctx, "42", def.FeatureID, value, ts))

	count, err := s.CountHistoricalValues(ctx, "42", def.FeatureID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "identical facts must not duplicate historical rows")

	current, err := s.GetCurrentValue(ctx, "42", def.FeatureID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, value, current.Value)
}

func TestGetCurrentValueAbsent(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)

	current, err := s.GetCurrentValue(ctx, "missing", "nothing")
	require.NoError(t, err)
	assert.Nil(t, current, "absence is a typed no-value result, not an error")

	latest, err := s.GetLatestHistorical(ctx, "missing", "nothing", nil)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestUpsertFeatureGroupIdempotent(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)

	now := time.Now().UTC()
	group := &schema.FeatureGroup{
		GroupID:     domain.GroupID("customer_financial"),
		Name:        "customer_financial",
		Description: "first",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.UpsertFeatureGroup(ctx, group))

	group.Description = "second"
	group.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, s.UpsertFeatureGroup(ctx, group))

	got, err := s.GetFeatureGroupByName(ctx, "customer_financial")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Description)

	groups, err := s.ListFeatureGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestUpdateDefinitionStatistics(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)
	def := seedDefinition(t, s, "customer_financial", "balance_mean", "1.0", domain.DataTypeFloat)

	stats := datatypes.JSON([]byte(`{"count":10,"min_value":1,"max_value":9,"mean_value":5}`))
	updated, err := s.UpdateDefinitionStatistics(ctx, def.FeatureID, stats, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := s.GetFeatureDefinition(ctx, def.FeatureID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(stats), string(got.Statistics))

	// Unknown feature id is a no-op, not an error
	updated, err = s.UpdateDefinitionStatistics(ctx, "unknown_feature_v9.9", stats, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestStoreCounters(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)

	defA := seedDefinition(t, s, "customer_financial", "balance_mean", "1.0", domain.DataTypeFloat)
	defB := seedDefinition(t, s, "customer_demographics", "age_mean", "1.0", domain.DataTypeFloat)

	ts := time.Now().UTC()
	for _, entity := range []string{"1", "2", "3"} {
		value, err := EncodeValue(1.0)
		require.NoError(t, err)
		require.NoError(t, s.WriteFact(ctx, entity, defA.FeatureID, value, ts))
	}
	value, err := EncodeValue(30.0)
	require.NoError(t, err)
	require.NoError(t, s.WriteFact(ctx, "1", defB.FeatureID, value, ts))

	total, err := s.CountActiveDefinitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	byGroup, err := s.CountActiveDefinitionsByGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), byGroup[domain.GroupID("customer_financial")])
	assert.Equal(t, int64(1), byGroup[domain.GroupID("customer_demographics")])

	entities, err := s.CountDistinctEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), entities)

	values, err := s.CountCurrentValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), values)
}

func TestAccessLogAndQualityMetrics(t *testing.T) {
	cleanTables(t)
	ctx := context.Background()
	s := NewGormStore(testDB)

	now := time.Now().UTC()
	require.NoError(t, s.AppendAccessLog(ctx, &schema.AccessLog{
		LogID:         "log_1",
		FeatureID:     "f1",
		EntityID:      "42",
		AccessType:    domain.AccessTypePoint,
		AccessTime:    now,
		RequestSource: "api",
	}))
	require.NoError(t, s.AppendAccessLog(ctx, &schema.AccessLog{
		LogID:         "log_2",
		FeatureID:     "f1",
		EntityID:      "42",
		AccessType:    domain.AccessTypeBatch,
		AccessTime:    now.Add(-48 * time.Hour),
		RequestSource: "api",
	}))

	recent, err := s.CountAccessSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent)

	require.NoError(t, s.RecordQualityMetric(ctx, &schema.QualityMetric{
		MetricID:        "metric_1",
		FeatureID:       "f1",
		MetricName:      "value_count",
		MetricValue:     3,
		MeasurementTime: now,
	}))
}

func TestDecodeValue(t *testing.T) {
	v, err := DecodeValue(`150.5`)
	require.NoError(t, err)
	assert.Equal(t, 150.5, v)

	v, err = DecodeValue(`"Germany"`)
	require.NoError(t, err)
	assert.Equal(t, "Germany", v)

	_, err = DecodeValue(`{not json`)
	require.ErrorIs(t, err, domain.ErrCorruptValue)

	n, err := DecodeNumeric(`42`)
	require.NoError(t, err)
	assert.Equal(t, 42.0, n)

	_, err = DecodeNumeric(`"not a number"`)
	require.ErrorIs(t, err, domain.ErrCorruptValue)
}
