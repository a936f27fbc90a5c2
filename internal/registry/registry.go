// Package registry owns the feature-group and feature-definition lifecycle.
// It is the sole source of truth for what features exist; the read-through
// cache below is an optimization, invalidated on every write.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/store"
	"github.com/meridianml/feature-store/internal/store/schema"
)

// CreatedBy marks definitions registered by this service
const CreatedBy = "feature-store-registry"

// Registry manages feature-group and feature-definition records
type Registry struct {
	store store.Store
	clock adapter.Clock

	mu    sync.RWMutex
	cache map[string]*schema.FeatureDefinition // feature name -> resolved current definition
}

// New creates a registry over the given store
func New(st store.Store, clock adapter.Clock) *Registry {
	return &Registry{
		store: st,
		clock: clock,
		cache: make(map[string]*schema.FeatureDefinition),
	}
}

// RegisterGroup idempotently registers a feature group and returns its derived id
func (r *Registry) RegisterGroup(ctx context.Context, name, description, sourceTable string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: group name is required", domain.ErrInvalidDefinition)
	}

	now := r.clock.Now()
	group := &schema.FeatureGroup{
		GroupID:     domain.GroupID(name),
		Name:        name,
		Description: description,
		SourceTable: sourceTable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.UpsertFeatureGroup(ctx, group); err != nil {
		return "", err
	}
	return group.GroupID, nil
}

// FeatureInput describes a feature definition to register
type FeatureInput struct {
	GroupName    string
	Name         string
	DataType     domain.DataType
	Version      string
	SourceColumn string
	Tags         []string
	Description  string
}

// RegisterFeature idempotently registers a feature definition and returns its
// deterministic id. The owning group must already be registered and the data
// type must be one of the enumerated kinds.
func (r *Registry) RegisterFeature(ctx context.Context, in FeatureInput) (string, error) {
	if in.Name == "" {
		return "", fmt.Errorf("%w: feature name is required", domain.ErrInvalidDefinition)
	}
	if !in.DataType.Valid() {
		return "", fmt.Errorf("%w: unknown data type %q", domain.ErrInvalidDefinition, in.DataType)
	}
	if in.Version == "" {
		in.Version = "1.0"
	}

	group, err := r.store.GetFeatureGroupByName(ctx, in.GroupName)
	if err != nil {
		return "", err
	}
	if group == nil {
		return "", fmt.Errorf("%w: group %q is not registered", domain.ErrInvalidDefinition, in.GroupName)
	}

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}

	now := r.clock.Now()
	def := &schema.FeatureDefinition{
		FeatureID:    domain.FeatureID(in.GroupName, in.Name, in.Version),
		Name:         in.Name,
		Description:  in.Description,
		GroupID:      group.GroupID,
		DataType:     in.DataType,
		Version:      in.Version,
		SourceTable:  group.SourceTable,
		SourceColumn: in.SourceColumn,
		CreatedBy:    CreatedBy,
		Tags:         datatypes.JSON(tagsJSON),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.store.UpsertFeatureDefinition(ctx, def); err != nil {
		return "", err
	}

	r.invalidate(in.Name)
	return def.FeatureID, nil
}

// ResolveCurrent returns the highest-version active definition matching name
func (r *Registry) ResolveCurrent(ctx context.Context, name string) (*schema.FeatureDefinition, error) {
	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	defs, err := r.store.ListActiveDefinitionsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: feature %q", domain.ErrNotFound, name)
	}

	current := &defs[0]
	for i := 1; i < len(defs); i++ {
		if domain.CompareVersions(defs[i].Version, current.Version) > 0 {
			current = &defs[i]
		}
	}

	r.mu.Lock()
	r.cache[name] = current
	r.mu.Unlock()
	return current, nil
}

// ListActive returns active definitions ordered by group then name,
// optionally filtered by group name
func (r *Registry) ListActive(ctx context.Context, groupFilter string) ([]schema.FeatureDefinition, error) {
	groupID := ""
	if groupFilter != "" {
		groupID = domain.GroupID(groupFilter)
	}
	return r.store.ListActiveDefinitions(ctx, groupID)
}

// SearchByTags returns active definitions whose tag set intersects the query
// set (OR semantics, carried from the reference behavior)
func (r *Registry) SearchByTags(ctx context.Context, tags []string) ([]schema.FeatureDefinition, error) {
	defs, err := r.store.ListActiveDefinitions(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return defs, nil
	}

	query := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		query[tag] = struct{}{}
	}

	matched := make([]schema.FeatureDefinition, 0, len(defs))
	for _, def := range defs {
		var defTags []string
		if len(def.Tags) > 0 {
			if err := json.Unmarshal(def.Tags, &defTags); err != nil {
				logger.Warn("skipping definition with unreadable tags",
					zap.String("feature_id", def.FeatureID), zap.Error(err))
				continue
			}
		}
		for _, tag := range defTags {
			if _, ok := query[tag]; ok {
				matched = append(matched, def)
				break
			}
		}
	}
	return matched, nil
}

// AttachStatistics overwrites the statistics snapshot of the named definition.
// An unknown feature id is logged and ignored, not fatal.
func (r *Registry) AttachStatistics(ctx context.Context, featureID string, stats domain.Statistics) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}

	updated, err := r.store.UpdateDefinitionStatistics(ctx, featureID, datatypes.JSON(statsJSON), r.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		logger.Warn("statistics attached to unknown feature, ignored",
			zap.String("feature_id", featureID))
		return nil
	}

	r.invalidateAll()
	return nil
}

// GetDefinition retrieves a definition by feature id; domain.ErrNotFound when absent
func (r *Registry) GetDefinition(ctx context.Context, featureID string) (*schema.FeatureDefinition, error) {
	def, err := r.store.GetFeatureDefinition(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: feature id %q", domain.ErrNotFound, featureID)
	}
	return def, nil
}

func (r *Registry) invalidate(name string) {
	r.mu.Lock()
	delete(r.cache, name)
	r.mu.Unlock()
}

func (r *Registry) invalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]*schema.FeatureDefinition)
	r.mu.Unlock()
}
