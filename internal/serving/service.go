package serving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/accesslog"
	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/store"
	"github.com/meridianml/feature-store/internal/store/schema"
)

var (
	// ErrFeatureNotFound marks an unknown or inactive feature name
	ErrFeatureNotFound = fmt.Errorf("%w: feature", domain.ErrNotFound)
	// ErrValueNotFound marks a known feature with no value for the entity
	ErrValueNotFound = fmt.Errorf("%w: value", domain.ErrNotFound)
)

// FeatureValue is a single decoded online value
type FeatureValue struct {
	EntityID    string
	FeatureName string
	Value       any
	LastUpdated time.Time
}

// BatchEntry is one feature's slot in a batch lookup result
type BatchEntry struct {
	Value       any       `json:"value"`
	LastUpdated time.Time `json:"last_updated"`
}

// HistoricalRow pairs an entity with its point-in-time feature values
type HistoricalRow struct {
	EntityID string         `json:"entity_id"`
	Features map[string]any `json:"features"`
}

// StoreStats aggregates operational counters across the store
type StoreStats struct {
	TotalFeatures        int64            `json:"total_features"`
	FeaturesByGroup      map[string]int64 `json:"features_by_group"`
	EntitiesWithFeatures int64            `json:"entities_with_features"`
	TotalFeatureValues   int64            `json:"total_feature_values"`
	RequestsLast24h      int64            `json:"requests_last_24h"`
}

// Service answers feature lookups from the online and historical stores,
// recording every successful read in the access log
type Service struct {
	store        store.Store
	registry     *registry.Registry
	sink         *accesslog.Sink
	clock        adapter.Clock
	recentWindow time.Duration
}

func NewService(st store.Store, reg *registry.Registry, sink *accesslog.Sink, clock adapter.Clock, recentWindow time.Duration) *Service {
	if recentWindow <= 0 {
		recentWindow = 24 * time.Hour
	}
	return &Service{
		store:        st,
		registry:     reg,
		sink:         sink,
		clock:        clock,
		recentWindow: recentWindow,
	}
}

// PointLookup returns the current value of one feature for one entity
func (s *Service) PointLookup(ctx context.Context, featureName, entityID, source string) (*FeatureValue, error) {
	started := s.clock.Now()

	def, err := s.registry.ResolveCurrent(ctx, featureName)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrFeatureNotFound
		}
		return nil, err
	}

	cv, err := s.store.GetCurrentValue(ctx, entityID, def.FeatureID)
	if err != nil {
		return nil, err
	}
	if cv == nil {
		return nil, ErrValueNotFound
	}

	value, err := store.DecodeValue(cv.Value)
	if err != nil {
		return nil, err
	}

	elapsed := s.clock.Since(started)
	s.sink.Record(def.FeatureID, entityID, domain.AccessTypePoint, source, &elapsed)

	return &FeatureValue{
		EntityID:    entityID,
		FeatureName: featureName,
		Value:       value,
		LastUpdated: cv.LastUpdated,
	}, nil
}

// BatchLookup returns the current values of several features for one entity.
// Unknown features and missing values are omitted rather than failing the
// request; only the returned features are logged as accessed.
func (s *Service) BatchLookup(ctx context.Context, entityID string, featureNames []string, source string) (map[string]BatchEntry, error) {
	result := make(map[string]BatchEntry)

	for _, name := range featureNames {
		started := s.clock.Now()
		def, err := s.registry.ResolveCurrent(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}

		cv, err := s.store.GetCurrentValue(ctx, entityID, def.FeatureID)
		if err != nil {
			return nil, err
		}
		if cv == nil {
			continue
		}

		value, err := store.DecodeValue(cv.Value)
		if err != nil {
			logger.WarnCtx(ctx, "skipping unreadable feature value",
				zap.String("featureID", def.FeatureID),
				zap.String("entityID", entityID),
				zap.Error(err))
			continue
		}

		result[name] = BatchEntry{Value: value, LastUpdated: cv.LastUpdated}

		elapsed := s.clock.Since(started)
		s.sink.Record(def.FeatureID, entityID, domain.AccessTypeBatch, source, &elapsed)
	}

	return result, nil
}

// HistoricalLookup assembles point-in-time rows for model training. For each
// entity it returns the latest historical value of each requested feature at
// or before asOf (nil means no bound). Entities with no values are omitted.
func (s *Service) HistoricalLookup(ctx context.Context, entityIDs []string, featureNames []string, asOf *time.Time, source string) ([]HistoricalRow, error) {
	// Resolve each requested name once for the whole request
	defs := make(map[string]*schema.FeatureDefinition, len(featureNames))
	for _, name := range featureNames {
		def, err := s.registry.ResolveCurrent(ctx, name)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		defs[name] = def
	}

	var rows []HistoricalRow
	for _, entityID := range entityIDs {
		features := make(map[string]any)
		for _, name := range featureNames {
			def, ok := defs[name]
			if !ok {
				continue
			}

			hv, err := s.store.GetLatestHistorical(ctx, entityID, def.FeatureID, asOf)
			if err != nil {
				return nil, err
			}
			if hv == nil {
				continue
			}

			value, err := store.DecodeValue(hv.Value)
			if err != nil {
				logger.WarnCtx(ctx, "skipping unreadable historical value",
					zap.String("featureID", def.FeatureID),
					zap.String("entityID", entityID),
					zap.Error(err))
				continue
			}

			features[name] = value
			s.sink.Record(def.FeatureID, entityID, domain.AccessTypeHistorical, source, nil)
		}
		if len(features) > 0 {
			rows = append(rows, HistoricalRow{EntityID: entityID, Features: features})
		}
	}

	return rows, nil
}

// ListMetadata returns the active feature catalog, optionally scoped to a group name
func (s *Service) ListMetadata(ctx context.Context, groupFilter string) ([]schema.FeatureDefinition, error) {
	return s.registry.ListActive(ctx, groupFilter)
}

// GetMetadata returns the current version's definition for a feature name
func (s *Service) GetMetadata(ctx context.Context, featureName string) (*schema.FeatureDefinition, error) {
	def, err := s.registry.ResolveCurrent(ctx, featureName)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrFeatureNotFound
	}
	return def, err
}

// SearchMetadata returns active definitions matching any of the given tags
func (s *Service) SearchMetadata(ctx context.Context, tags []string) ([]schema.FeatureDefinition, error) {
	return s.registry.SearchByTags(ctx, tags)
}

// Stats assembles the operational counters exposed on the stats endpoint
func (s *Service) Stats(ctx context.Context) (*StoreStats, error) {
	totalFeatures, err := s.store.CountActiveDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	byGroup, err := s.store.CountActiveDefinitionsByGroup(ctx)
	if err != nil {
		return nil, err
	}
	entities, err := s.store.CountDistinctEntities(ctx)
	if err != nil {
		return nil, err
	}
	values, err := s.store.CountCurrentValues(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.CountAccessSince(ctx, s.clock.Now().Add(-s.recentWindow))
	if err != nil {
		return nil, err
	}

	return &StoreStats{
		TotalFeatures:        totalFeatures,
		FeaturesByGroup:      byGroup,
		EntitiesWithFeatures: entities,
		TotalFeatureValues:   values,
		RequestsLast24h:      recent,
	}, nil
}

// Health verifies the metadata store answers a real read and reports the
// active feature count
func (s *Service) Health(ctx context.Context) (int64, error) {
	return s.store.CountActiveDefinitions(ctx)
}
