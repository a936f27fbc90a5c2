package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianml/feature-store/internal/accesslog"
	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/api/middleware"
	"github.com/meridianml/feature-store/internal/api/rest"
	"github.com/meridianml/feature-store/internal/config"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/serving"
	"github.com/meridianml/feature-store/internal/store"
)

const testAPIKey = "test-api-key"

type apiFixture struct {
	router    *gin.Engine
	store     store.Store
	refreshed *atomic.Int64
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	gin.SetMode(gin.TestMode)
	require.NoError(t, logger.Initialize(logger.Config{Debug: true}))

	db, err := store.Open(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, store.Migrate(db))

	st := store.NewGormStore(db)
	clock := &adapter.FixedClock{Instant: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)}
	reg := registry.New(st, clock)
	sink := accesslog.NewSink(st, clock, 64)
	t.Cleanup(sink.Close)

	_, err = reg.RegisterFromConfig(context.Background(), map[string]config.GroupSpec{
		"customer_financial": {
			SourceTable: "fact_customer_features",
			Features: []config.FeatureSpec{
				{Name: "balance_mean", Type: "float", Version: "1.0", SourceColumn: "balance_mean", Tags: []string{"financial"}},
				{Name: "segment", Type: "category", Version: "1.0", SourceColumn: "segment", Tags: []string{"demographic"}},
			},
		},
	})
	require.NoError(t, err)

	refreshed := &atomic.Int64{}
	service := serving.NewService(st, reg, sink, clock, 24*time.Hour)
	handler := rest.NewHandler(service, clock, func(ctx context.Context) error {
		refreshed.Add(1)
		return nil
	})

	router := gin.New()
	rest.SetupRoutes(router, handler, middleware.AuthConfig{APIKeys: []string{testAPIKey}})

	return &apiFixture{router: router, store: st, refreshed: refreshed}
}

func (f *apiFixture) writeFact(t *testing.T, entityID, featureID string, value any) {
	t.Helper()
	encoded, err := store.EncodeValue(value)
	require.NoError(t, err)
	require.NoError(t, f.store.WriteFact(context.Background(), entityID, featureID, encoded,
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)))
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetFeature(t *testing.T) {
	f := newAPIFixture(t)
	f.writeFact(t, "CUST_001", "customer_financial_balance_mean_v1.0", 1523.55)

	rec := f.do(t, http.MethodGet, "/api/v1/features/balance_mean/entity/CUST_001", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CUST_001", resp["entity_id"])
	assert.Equal(t, "balance_mean", resp["feature_name"])
	assert.Equal(t, 1523.55, resp["feature_value"])
}

func TestGetFeatureNotFound(t *testing.T) {
	f := newAPIFixture(t)
	f.writeFact(t, "CUST_001", "customer_financial_balance_mean_v1.0", 1.0)

	// Unknown feature name
	rec := f.do(t, http.MethodGet, "/api/v1/features/no_such/entity/CUST_001", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Known feature, entity has no value
	rec = f.do(t, http.MethodGet, "/api/v1/features/balance_mean/entity/CUST_404", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp["error"]["code"])
}

func TestGetBatchFeatures(t *testing.T) {
	f := newAPIFixture(t)
	f.writeFact(t, "CUST_001", "customer_financial_balance_mean_v1.0", 100.5)
	f.writeFact(t, "CUST_001", "customer_financial_segment_v1.0", "premium")

	rec := f.do(t, http.MethodPost, "/api/v1/features/batch", map[string]any{
		"entity_id": "CUST_001",
		"features":  []string{"balance_mean", "segment", "unknown"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		EntityID string                    `json:"entity_id"`
		Features map[string]map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CUST_001", resp.EntityID)
	require.Len(t, resp.Features, 2)
	assert.Equal(t, 100.5, resp.Features["balance_mean"]["value"])
	assert.Equal(t, "premium", resp.Features["segment"]["value"])
}

func TestGetBatchFeaturesValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/features/batch", map[string]any{
		"features": []string{"balance_mean"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistoricalFeatures(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	const featureID = "customer_financial_balance_mean_v1.0"
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	encoded, err := store.EncodeValue(10.0)
	require.NoError(t, err)
	require.NoError(t, f.store.WriteFact(ctx, "CUST_001", featureID, encoded, t1))
	encoded, err = store.EncodeValue(20.0)
	require.NoError(t, err)
	require.NoError(t, f.store.WriteFact(ctx, "CUST_001", featureID, encoded, t2))

	rec := f.do(t, http.MethodPost, "/api/v1/features/historical", map[string]any{
		"entity_rows": []map[string]string{{"entity_id": "CUST_001"}},
		"features":    []string{"balance_mean"},
		"timestamp_range": map[string]string{
			"end": "2026-01-15T00:00:00Z",
		},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		HistoricalFeatures []struct {
			EntityID string         `json:"entity_id"`
			Features map[string]any `json:"features"`
		} `json:"historical_features"`
		TotalEntities int `json:"total_entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalEntities)
	require.Len(t, resp.HistoricalFeatures, 1)
	assert.Equal(t, 10.0, resp.HistoricalFeatures[0].Features["balance_mean"])
}

func TestListAndSearchFeatures(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/metadata/features", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Features   []map[string]any `json:"features"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.TotalCount)

	rec = f.do(t, http.MethodGet, "/api/v1/metadata/features/search?tags=financial", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var search struct {
		Features   []map[string]any `json:"features"`
		SearchTags []string         `json:"search_tags"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &search))
	assert.Equal(t, 1, search.TotalCount)
	assert.Equal(t, []string{"financial"}, search.SearchTags)
	assert.Equal(t, "balance_mean", search.Features[0]["name"])
}

func TestGetFeatureMetadata(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/metadata/features/balance_mean", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "customer_financial_balance_mean_v1.0", resp["feature_id"])
	assert.Equal(t, "float", resp["data_type"])
	assert.Equal(t, []any{"financial"}, resp["tags"])

	rec = f.do(t, http.MethodGet, "/api/v1/metadata/features/no_such", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStats(t *testing.T) {
	f := newAPIFixture(t)
	f.writeFact(t, "CUST_001", "customer_financial_balance_mean_v1.0", 1.0)

	rec := f.do(t, http.MethodGet, "/api/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["total_features"])
	assert.Equal(t, float64(1), resp["entities_with_features"])
	assert.Equal(t, float64(1), resp["total_feature_values"])
}

func TestTriggerRefreshRequiresAPIKey(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/refresh", nil, map[string]string{
		"Authorization": "ApiKey wrong-key",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/refresh", nil, map[string]string{
		"Authorization": "ApiKey " + testAPIKey,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The refresh runs in the background
	require.Eventually(t, func() bool {
		return f.refreshed.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(2), resp["feature_count"])
}
