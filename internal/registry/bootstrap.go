package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/config"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/logger"
)

// RegisterFromConfig registers every group and feature declared in the
// configuration. Re-running against an already-populated registry is safe:
// ids are deterministic and registration is an idempotent upsert.
func (r *Registry) RegisterFromConfig(ctx context.Context, groups map[string]config.GroupSpec) (int, error) {
	featureCount := 0

	for groupName, spec := range groups {
		if _, err := r.RegisterGroup(ctx, groupName, spec.Description, spec.SourceTable); err != nil {
			return featureCount, err
		}

		for _, feature := range spec.Features {
			_, err := r.RegisterFeature(ctx, FeatureInput{
				GroupName:    groupName,
				Name:         feature.Name,
				DataType:     domain.DataType(feature.Type),
				Version:      feature.Version,
				SourceColumn: feature.SourceColumn,
				Tags:         feature.Tags,
				Description:  feature.Description,
			})
			if err != nil {
				return featureCount, err
			}
			featureCount++
		}

		logger.Info("registered feature group",
			zap.String("group", groupName),
			zap.Int("features", len(spec.Features)))
	}

	return featureCount, nil
}
