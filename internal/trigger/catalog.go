// Package trigger defines the regeneration triggers: each one binds a
// context metric to a threshold and names the artifact to regenerate once
// the threshold is reached.
package trigger

import (
	"fmt"
	"slices"

	"github.com/p-blackswan/contextd/internal/contextstore"
)

// Definition is one regeneration trigger.
type Definition struct {
	ID           string              `json:"id" yaml:"id"`
	Name         string              `json:"name" yaml:"name"`
	Description  string              `json:"description" yaml:"description"`
	Metric       contextstore.Metric `json:"metric" yaml:"metric"`
	Threshold    int                 `json:"threshold" yaml:"threshold"`
	ArtifactType string              `json:"artifact_type" yaml:"artifact_type"`
	Icon         string              `json:"icon" yaml:"icon"`
	Color        string              `json:"color" yaml:"color"`
}

// Percentage returns how far current is towards the threshold, capped at 100.
// A zero threshold is always complete.
func (d Definition) Percentage(current int) float64 {
	if d.Threshold <= 0 {
		return 100
	}
	p := float64(current) / float64(d.Threshold) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Ready reports whether current has reached the threshold.
func (d Definition) Ready(current int) bool {
	return current >= d.Threshold
}

// Catalog is an immutable, ordered set of trigger definitions.
type Catalog struct {
	defs []Definition
}

// NewCatalog validates defs and returns a catalog holding a copy of them.
func NewCatalog(defs []Definition) (*Catalog, error) {
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("trigger %d: id is required", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("trigger %q: duplicate id", d.ID)
		}
		seen[d.ID] = true
		if !d.Metric.Valid() {
			return nil, fmt.Errorf("trigger %q: unknown metric %q", d.ID, d.Metric)
		}
		if d.Threshold <= 0 {
			return nil, fmt.Errorf("trigger %q: threshold must be > 0, got %d", d.ID, d.Threshold)
		}
		if d.ArtifactType == "" {
			return nil, fmt.Errorf("trigger %q: artifact_type is required", d.ID)
		}
	}
	return &Catalog{defs: slices.Clone(defs)}, nil
}

// All returns the definitions in catalog order.
func (c *Catalog) All() []Definition {
	return slices.Clone(c.defs)
}

// Len returns the number of triggers.
func (c *Catalog) Len() int { return len(c.defs) }

// Lookup returns the trigger with the given id.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	for _, d := range c.defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// ForArtifact returns the triggers that regenerate artifactType.
func (c *Catalog) ForArtifact(artifactType string) []Definition {
	var out []Definition
	for _, d := range c.defs {
		if d.ArtifactType == artifactType {
			out = append(out, d)
		}
	}
	return out
}

// ArtifactTypes returns the distinct artifact types named by the catalog.
func (c *Catalog) ArtifactTypes() []string {
	var out []string
	for _, d := range c.defs {
		if !slices.Contains(out, d.ArtifactType) {
			out = append(out, d.ArtifactType)
		}
	}
	return out
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultDefinitions)
	if err != nil {
		panic("trigger: invalid built-in catalog: " + err.Error())
	}
	return c
}

var defaultDefinitions = []Definition{
	{
		ID:           "buyer-personas",
		Name:         "Buyer Personas Regeneration",
		Description:  "Update personas with real customer interview insights",
		Metric:       contextstore.CustomerInterviews,
		Threshold:    5,
		ArtifactType: "buyer_personas",
		Icon:         "👥",
		Color:        "blue",
	},
	{
		ID:           "value-proposition",
		Name:         "Value Proposition Refinement",
		Description:  "Refine value prop based on actual visitor behavior",
		Metric:       contextstore.WebsiteVisitors,
		Threshold:    100,
		ArtifactType: "value_proposition",
		Icon:         "💎",
		Color:        "purple",
	},
	{
		ID:           "sales-playbook",
		Name:         "Sales Playbook Update",
		Description:  "Improve playbook with real sales conversations",
		Metric:       contextstore.DealsClosed,
		Threshold:    10,
		ArtifactType: "sales_playbook",
		Icon:         "📈",
		Color:        "green",
	},
	{
		ID:           "financial-projections",
		Name:         "Financial Projections Refresh",
		Description:  "Update projections with actual revenue data",
		Metric:       contextstore.RevenueMonths,
		Threshold:    3,
		ArtifactType: "financial_projections",
		Icon:         "💰",
		Color:        "yellow",
	},
	{
		ID:           "competitive-analysis",
		Name:         "Competitive Analysis Update",
		Description:  "Refresh competitive landscape insights",
		Metric:       contextstore.CompetitorChanges,
		Threshold:    5,
		ArtifactType: "competitive_analysis",
		Icon:         "⚔️",
		Color:        "red",
	},
	{
		ID:           "validation-insights",
		Name:         "Validation Insights",
		Description:  "Generate insights from validation experiments",
		Metric:       contextstore.ValidationExperiments,
		Threshold:    3,
		ArtifactType: "validation_insights",
		Icon:         "🧪",
		Color:        "cyan",
	},
}
