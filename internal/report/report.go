package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/store"
)

// Generator writes human- and machine-readable reports over the registered
// feature catalog
type Generator struct {
	store    store.Store
	registry *registry.Registry
	clock    adapter.Clock
	dir      string
}

func NewGenerator(st store.Store, reg *registry.Registry, clock adapter.Clock, dir string) *Generator {
	return &Generator{store: st, registry: reg, clock: clock, dir: dir}
}

// WriteDocumentation renders a markdown catalog of every group and its active
// features and returns the written path
func (g *Generator) WriteDocumentation(ctx context.Context) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	groups, err := g.store.ListFeatureGroups(ctx)
	if err != nil {
		return "", err
	}

	now := g.clock.Now()
	var b strings.Builder
	b.WriteString("# Feature Store Documentation\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", now.Format("2006-01-02T15:04:05Z07:00"))

	totalFeatures, err := g.store.CountActiveDefinitions(ctx)
	if err != nil {
		return "", err
	}

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total Features: %d\n", totalFeatures)
	fmt.Fprintf(&b, "- Feature Groups: %d\n\n", len(groups))

	for _, group := range groups {
		fmt.Fprintf(&b, "## Feature Group: %s\n\n", group.Name)
		fmt.Fprintf(&b, "**Description**: %s\n\n", orNA(group.Description))
		fmt.Fprintf(&b, "**Source Table**: %s\n\n", orNA(group.SourceTable))

		defs, err := g.registry.ListActive(ctx, group.Name)
		if err != nil {
			return "", err
		}

		b.WriteString("### Features\n\n")
		b.WriteString("| Feature Name | Type | Description | Version | Tags |\n")
		b.WriteString("|--------------|------|-------------|---------|------|\n")
		for i := range defs {
			def := &defs[i]
			var tags []string
			if len(def.Tags) > 0 {
				_ = json.Unmarshal(def.Tags, &tags)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				def.Name, def.DataType, def.Description, def.Version, strings.Join(tags, ", "))
		}
		b.WriteString("\n")
	}

	path := filepath.Join(g.dir, fmt.Sprintf("feature_store_documentation_%s.md", now.Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write documentation: %w", err)
	}

	logger.InfoCtx(ctx, "feature documentation generated", zap.String("path", path))
	return path, nil
}

// summaryReport is the JSON shape of the summary file
type summaryReport struct {
	FeatureStoreSummary struct {
		GenerationTimestamp string `json:"generation_timestamp"`
		TotalFeatures       int64  `json:"total_features"`
		TotalFeatureGroups  int    `json:"total_feature_groups"`
	} `json:"feature_store_summary"`
	FeatureGroups     map[string]groupSummary    `json:"feature_groups"`
	FeatureStatistics map[string]json.RawMessage `json:"feature_statistics"`
}

type groupSummary struct {
	Description  string   `json:"description"`
	SourceTable  string   `json:"source_table"`
	FeatureCount int      `json:"feature_count"`
	Features     []string `json:"features"`
}

// WriteSummary renders a JSON totals report, including every attached
// statistics snapshot, and returns the written path
func (g *Generator) WriteSummary(ctx context.Context) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	groups, err := g.store.ListFeatureGroups(ctx)
	if err != nil {
		return "", err
	}
	totalFeatures, err := g.store.CountActiveDefinitions(ctx)
	if err != nil {
		return "", err
	}

	now := g.clock.Now()
	summary := summaryReport{
		FeatureGroups:     make(map[string]groupSummary, len(groups)),
		FeatureStatistics: make(map[string]json.RawMessage),
	}
	summary.FeatureStoreSummary.GenerationTimestamp = now.Format("2006-01-02T15:04:05Z07:00")
	summary.FeatureStoreSummary.TotalFeatures = totalFeatures
	summary.FeatureStoreSummary.TotalFeatureGroups = len(groups)

	for _, group := range groups {
		defs, err := g.registry.ListActive(ctx, group.Name)
		if err != nil {
			return "", err
		}

		names := make([]string, 0, len(defs))
		for i := range defs {
			names = append(names, defs[i].Name)
			if len(defs[i].Statistics) > 0 {
				summary.FeatureStatistics[defs[i].FeatureID] = json.RawMessage(defs[i].Statistics)
			}
		}

		summary.FeatureGroups[group.Name] = groupSummary{
			Description:  group.Description,
			SourceTable:  group.SourceTable,
			FeatureCount: len(defs),
			Features:     names,
		}
	}

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}

	path := filepath.Join(g.dir, fmt.Sprintf("feature_store_summary_%s.json", now.Format("20060102_150405")))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	logger.InfoCtx(ctx, "feature store summary saved", zap.String("path", path))
	return path, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
