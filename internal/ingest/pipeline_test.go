package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/config"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/ingest"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/store"
)

type fakeSource struct {
	rows []ingest.Row
	err  error
}

func (f *fakeSource) Snapshot(ctx context.Context) ([]ingest.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

var testGroups = map[string]config.GroupSpec{
	"customer_financial": {
		Description: "financial aggregates",
		SourceTable: "fact_customer_features",
		Features: []config.FeatureSpec{
			{Name: "balance_mean", Type: "float", Version: "1.0", SourceColumn: "balance_mean"},
			{Name: "transaction_count", Type: "integer", Version: "1.0", SourceColumn: "transaction_count"},
			{Name: "risk_score", Type: "float", Version: "1.0"},
		},
	},
}

func newTestPipeline(t *testing.T, source ingest.Source) (*ingest.Pipeline, store.Store, adapter.Clock) {
	t.Helper()

	require.NoError(t, logger.Initialize(logger.Config{Debug: true}))

	db, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(db))

	st := store.NewGormStore(db)
	clock := &adapter.FixedClock{Instant: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := registry.New(st, clock)

	_, err = reg.RegisterFromConfig(context.Background(), testGroups)
	require.NoError(t, err)

	return ingest.NewPipeline(source, st, reg, clock, testGroups), st, clock
}

func TestPipelineWritesMappedColumns(t *testing.T) {
	source := &fakeSource{rows: []ingest.Row{
		{EntityID: "CUST_001", Columns: map[string]any{
			"balance_mean":      1523.55,
			"transaction_count": int64(42),
		}},
		{EntityID: "CUST_002", Columns: map[string]any{
			"balance_mean":      -12.5,
			"transaction_count": int64(7),
		}},
	}}
	pipeline, st, clock := newTestPipeline(t, source)
	ctx := context.Background()

	result, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsProcessed)
	assert.Equal(t, 4, result.FactsWritten)
	assert.Equal(t, 0, result.Failures)

	cv, err := st.GetCurrentValue(ctx, "CUST_001", "customer_financial_balance_mean_v1.0")
	require.NoError(t, err)
	require.NotNil(t, cv)
	decoded, err := store.DecodeValue(cv.Value)
	require.NoError(t, err)
	assert.Equal(t, 1523.55, decoded)

	// Every fact also lands in the historical table at the run timestamp
	hv, err := st.GetLatestHistorical(ctx, "CUST_002", "customer_financial_transaction_count_v1.0", nil)
	require.NoError(t, err)
	require.NotNil(t, hv)
	assert.True(t, hv.Timestamp.Equal(clock.Now()))
}

func TestPipelineSkipsNilAndUnmappedColumns(t *testing.T) {
	source := &fakeSource{rows: []ingest.Row{
		{EntityID: "CUST_001", Columns: map[string]any{
			"balance_mean":      nil,
			"transaction_count": int64(3),
			"unknown_column":    "ignored",
		}},
	}}
	pipeline, st, _ := newTestPipeline(t, source)
	ctx := context.Background()

	result, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsProcessed)
	assert.Equal(t, 1, result.FactsWritten)
	assert.Equal(t, 0, result.Failures)

	cv, err := st.GetCurrentValue(ctx, "CUST_001", "customer_financial_balance_mean_v1.0")
	require.NoError(t, err)
	assert.Nil(t, cv)
}

func TestPipelineAbortsWhenSourceUnavailable(t *testing.T) {
	source := &fakeSource{err: domain.ErrUpstreamUnavailable}
	pipeline, st, _ := newTestPipeline(t, source)
	ctx := context.Background()

	_, err := pipeline.Run(ctx)
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	// Nothing is written when the snapshot fails
	count, err := st.CountCurrentValues(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPipelineContinuesPastBadRows(t *testing.T) {
	source := &fakeSource{rows: []ingest.Row{
		{EntityID: "", Columns: map[string]any{"balance_mean": 1.0}},
		{EntityID: "CUST_002", Columns: map[string]any{"balance_mean": 2.0}},
	}}
	pipeline, st, _ := newTestPipeline(t, source)
	ctx := context.Background()

	result, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsProcessed)
	assert.Equal(t, 1, result.FactsWritten)
	assert.Equal(t, 1, result.Failures)

	cv, err := st.GetCurrentValue(ctx, "CUST_002", "customer_financial_balance_mean_v1.0")
	require.NoError(t, err)
	require.NotNil(t, cv)
}

func TestPipelineRunIsIdempotent(t *testing.T) {
	source := &fakeSource{rows: []ingest.Row{
		{EntityID: "CUST_001", Columns: map[string]any{"balance_mean": 5.5}},
	}}
	pipeline, st, _ := newTestPipeline(t, source)
	ctx := context.Background()

	_, err := pipeline.Run(ctx)
	require.NoError(t, err)
	_, err = pipeline.Run(ctx)
	require.NoError(t, err)

	// Same snapshot and same run timestamp collapse onto one historical row
	count, err := st.CountHistoricalValues(ctx, "CUST_001", "customer_financial_balance_mean_v1.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
