// Package contextstore reads and writes the accumulated usage signals of a
// project, kept inside the metadata container of its project record.
package contextstore

import (
	"slices"
	"time"

	perrors "github.com/p-blackswan/contextd/internal/errors"
)

// Metric names one integer field of a Context.
type Metric string

const (
	CustomerInterviews    Metric = "customer_interviews"
	WebsiteVisitors       Metric = "website_visitors"
	DealsClosed           Metric = "deals_closed"
	RevenueMonths         Metric = "revenue_months"
	CompetitorChanges     Metric = "competitor_changes"
	ValidationExperiments Metric = "validation_experiments"
	TeamSize              Metric = "team_size"
)

var allMetrics = []Metric{
	CustomerInterviews,
	WebsiteVisitors,
	DealsClosed,
	RevenueMonths,
	CompetitorChanges,
	ValidationExperiments,
	TeamSize,
}

// Metrics returns every metric a Context carries, in declaration order.
func Metrics() []Metric {
	return slices.Clone(allMetrics)
}

// Valid reports whether m names a Context field.
func (m Metric) Valid() bool {
	return slices.Contains(allMetrics, m)
}

// ParseMetric validates a metric name coming from a caller.
func ParseMetric(name string) (Metric, error) {
	m := Metric(name)
	if !m.Valid() {
		return "", perrors.UnknownMetric(name)
	}
	return m, nil
}

// Context holds the accumulated usage counters of one project.
type Context struct {
	ProjectID             string     `json:"project_id"`
	CustomerInterviews    int        `json:"customer_interviews"`
	WebsiteVisitors       int        `json:"website_visitors"`
	DealsClosed           int        `json:"deals_closed"`
	RevenueMonths         int        `json:"revenue_months"`
	CompetitorChanges     int        `json:"competitor_changes"`
	ValidationExperiments int        `json:"validation_experiments"`
	TeamSize              int        `json:"team_size"`
	LastRegeneration      *time.Time `json:"last_regeneration,omitempty"`
}

// Default returns the context of a project that has none stored yet.
// It is never written back by a read.
func Default(projectID string) Context {
	return Context{ProjectID: projectID, TeamSize: 1}
}

// Value returns the counter named by m, 0 for unknown metrics.
func (c *Context) Value(m Metric) int {
	if p := c.field(m); p != nil {
		return *p
	}
	return 0
}

func (c *Context) field(m Metric) *int {
	switch m {
	case CustomerInterviews:
		return &c.CustomerInterviews
	case WebsiteVisitors:
		return &c.WebsiteVisitors
	case DealsClosed:
		return &c.DealsClosed
	case RevenueMonths:
		return &c.RevenueMonths
	case CompetitorChanges:
		return &c.CompetitorChanges
	case ValidationExperiments:
		return &c.ValidationExperiments
	case TeamSize:
		return &c.TeamSize
	}
	return nil
}

// Partial is a shallow update: every non-nil field replaces the stored value.
type Partial struct {
	CustomerInterviews    *int       `json:"customer_interviews,omitempty"`
	WebsiteVisitors       *int       `json:"website_visitors,omitempty"`
	DealsClosed           *int       `json:"deals_closed,omitempty"`
	RevenueMonths         *int       `json:"revenue_months,omitempty"`
	CompetitorChanges     *int       `json:"competitor_changes,omitempty"`
	ValidationExperiments *int       `json:"validation_experiments,omitempty"`
	TeamSize              *int       `json:"team_size,omitempty"`
	LastRegeneration      *time.Time `json:"last_regeneration,omitempty"`
}

// Set returns a Partial that sets a single metric.
func Set(m Metric, value int) Partial {
	var p Partial
	if f := p.field(m); f != nil {
		v := value
		*f = &v
	}
	return p
}

func (p *Partial) field(m Metric) **int {
	switch m {
	case CustomerInterviews:
		return &p.CustomerInterviews
	case WebsiteVisitors:
		return &p.WebsiteVisitors
	case DealsClosed:
		return &p.DealsClosed
	case RevenueMonths:
		return &p.RevenueMonths
	case CompetitorChanges:
		return &p.CompetitorChanges
	case ValidationExperiments:
		return &p.ValidationExperiments
	case TeamSize:
		return &p.TeamSize
	}
	return nil
}

// Empty reports whether p changes nothing.
func (p Partial) Empty() bool {
	for _, m := range allMetrics {
		if *p.field(m) != nil {
			return false
		}
	}
	return p.LastRegeneration == nil
}

// Validate rejects negative counters.
func (p Partial) Validate() error {
	for _, m := range allMetrics {
		if v := *p.field(m); v != nil && *v < 0 {
			return perrors.InvalidInput("%s must be >= 0, got %d", m, *v)
		}
	}
	return nil
}

// Apply overwrites the fields of c named in p.
func (p Partial) Apply(c *Context) {
	for _, m := range allMetrics {
		if v := *p.field(m); v != nil {
			*c.field(m) = *v
		}
	}
	if p.LastRegeneration != nil {
		t := *p.LastRegeneration
		c.LastRegeneration = &t
	}
}

// FiredState records which triggers fired for a project and where each one
// stands in its regeneration lifecycle.
type FiredState struct {
	Fired         []string          `json:"fired_triggers"`
	Pending       []string          `json:"pending_regenerations"`
	Completed     []string          `json:"completed_regenerations"`
	RegeneratedAt map[string]string `json:"regenerated_at,omitempty"`
}

// IsFired reports whether id has ever fired.
func (f *FiredState) IsFired(id string) bool { return slices.Contains(f.Fired, id) }

// IsPending reports whether id awaits regeneration.
func (f *FiredState) IsPending(id string) bool { return slices.Contains(f.Pending, id) }

// IsCompleted reports whether id has been regenerated at least once.
func (f *FiredState) IsCompleted(id string) bool { return slices.Contains(f.Completed, id) }
