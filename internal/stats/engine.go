package stats

import (
	"context"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/store"
	"github.com/meridianml/feature-store/internal/store/schema"
)

// Summary reports one statistics pass over the active feature catalog
type Summary struct {
	FeaturesScanned  int
	SnapshotsWritten int
	CorruptValues    int
}

// Engine recomputes per-feature aggregate statistics from the online store
// and attaches the snapshots to the feature catalog
type Engine struct {
	store    store.Store
	registry *registry.Registry
	clock    adapter.Clock
	workers  int
}

func NewEngine(st store.Store, reg *registry.Registry, clock adapter.Clock, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{store: st, registry: reg, clock: clock, workers: workers}
}

// Run computes statistics for every active feature definition. Features are
// processed concurrently; one failing feature does not stop the others.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	defs, err := e.registry.ListActive(ctx, "")
	if err != nil {
		return Summary{}, err
	}

	totalEntities, err := e.store.CountDistinctEntities(ctx)
	if err != nil {
		return Summary{}, err
	}

	pool := pond.NewPool(e.workers, pond.WithContext(ctx))

	var mu sync.Mutex
	summary := Summary{FeaturesScanned: len(defs)}

	for i := range defs {
		def := defs[i]
		pool.Submit(func() {
			written, corrupt, err := e.computeOne(ctx, &def, totalEntities)
			if err != nil {
				logger.WarnCtx(ctx, "failed to compute feature statistics",
					zap.String("featureID", def.FeatureID),
					zap.Error(err))
				return
			}
			mu.Lock()
			if written {
				summary.SnapshotsWritten++
			}
			summary.CorruptValues += corrupt
			mu.Unlock()
		})
	}
	pool.StopAndWait()

	logger.InfoCtx(ctx, "statistics pass finished",
		zap.Int("featuresScanned", summary.FeaturesScanned),
		zap.Int("snapshotsWritten", summary.SnapshotsWritten),
		zap.Int("corruptValues", summary.CorruptValues))

	return summary, nil
}

// computeOne aggregates the online rows of a single feature. A feature with
// no rows keeps its previous snapshot untouched.
func (e *Engine) computeOne(ctx context.Context, def *schema.FeatureDefinition, totalEntities int64) (bool, int, error) {
	rows, err := e.store.ListCurrentValuesByFeature(ctx, def.FeatureID)
	if err != nil {
		return false, 0, err
	}
	if len(rows) == 0 {
		return false, 0, nil
	}

	// Count covers every stored row, corrupt ones included; min/max/mean are
	// computed over the decodable subset. corrupt_count reports the difference.
	stats := domain.Statistics{Count: int64(len(rows))}
	corrupt := 0

	if def.DataType.Numeric() {
		var (
			sum      float64
			observed int64
			min, max float64
		)
		for _, row := range rows {
			v, err := store.DecodeNumeric(row.Value)
			if err != nil {
				corrupt++
				logger.WarnCtx(ctx, "skipping unreadable feature value",
					zap.String("featureID", def.FeatureID),
					zap.String("entityID", row.EntityID),
					zap.Error(err))
				continue
			}
			if observed == 0 || v < min {
				min = v
			}
			if observed == 0 || v > max {
				max = v
			}
			sum += v
			observed++
		}
		if observed > 0 {
			mean := sum / float64(observed)
			stats.Min = &min
			stats.Max = &max
			stats.Mean = &mean
		}
	}

	if err := e.registry.AttachStatistics(ctx, def.FeatureID, stats); err != nil {
		return false, corrupt, err
	}

	e.recordQuality(ctx, def.FeatureID, "value_count", float64(len(rows)))
	e.recordQuality(ctx, def.FeatureID, "corrupt_count", float64(corrupt))
	if totalEntities > 0 {
		coverage := float64(len(rows)) / float64(totalEntities)
		e.recordQuality(ctx, def.FeatureID, "entity_coverage", coverage)
	}

	return true, corrupt, nil
}

func (e *Engine) recordQuality(ctx context.Context, featureID, name string, value float64) {
	metric := &schema.QualityMetric{
		MetricID:        uuid.New().String(),
		FeatureID:       featureID,
		MetricName:      name,
		MetricValue:     value,
		MeasurementTime: e.clock.Now(),
	}
	if err := e.store.RecordQualityMetric(ctx, metric); err != nil {
		logger.WarnCtx(ctx, "failed to record quality metric",
			zap.String("featureID", featureID),
			zap.String("metric", name),
			zap.Error(err))
	}
}
