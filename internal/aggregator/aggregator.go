// Package aggregator derives regeneration readiness and context quality from
// a project's accumulated context, and fires each trigger at most once.
//
// Per trigger and project the lifecycle is one-directional:
//
//	not ready --threshold reached--> fired & pending --MarkRegenerated--> completed
//
// Nothing moves a trigger back, even if a counter were lowered later.
package aggregator

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/contextd/internal/contextstore"
	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/metrics"
	"github.com/p-blackswan/contextd/internal/notify"
	"github.com/p-blackswan/contextd/internal/trigger"
)

// Progress is how close one trigger is to firing for a project.
type Progress struct {
	Trigger    trigger.Definition `json:"trigger"`
	Current    int                `json:"current"`
	Threshold  int                `json:"threshold"`
	Percentage float64            `json:"percentage"`
	Ready      bool               `json:"ready"`
}

// Aggregator evaluates the trigger catalog against project context.
type Aggregator struct {
	store    *contextstore.Store
	catalog  *trigger.Catalog
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNotifier sets who is told about newly fired triggers.
func WithNotifier(n notify.Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// New creates an Aggregator.
func New(store *contextstore.Store, catalog *trigger.Catalog, logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:    store,
		catalog:  catalog,
		notifier: notify.Nop{},
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Catalog returns the trigger catalog in use.
func (a *Aggregator) Catalog() *trigger.Catalog { return a.catalog }

// Context returns the project's current context (defaults if none stored).
func (a *Aggregator) Context(ctx context.Context, projectID string) (*contextstore.Context, error) {
	c, err := a.store.Get(ctx, projectID)
	if err != nil {
		a.recordStoreError("get", err)
		return nil, err
	}
	return c, nil
}

// UpdateContext merges p into the project's context.
func (a *Aggregator) UpdateContext(ctx context.Context, projectID string, p contextstore.Partial) error {
	if err := a.store.Update(ctx, projectID, p); err != nil {
		a.recordStoreError("update", err)
		return err
	}
	return nil
}

// IncrementMetric adds amount to a context counter, persists it, and then
// checks the catalog for newly crossed thresholds. It returns the triggers
// that fired as a result.
func (a *Aggregator) IncrementMetric(ctx context.Context, projectID, metric string, amount int) ([]trigger.Definition, error) {
	m, err := contextstore.ParseMetric(metric)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, perrors.InvalidInput("amount must be >= 0, got %d", amount)
	}

	err = a.store.Mutate(ctx, projectID, func(snap *contextstore.Snapshot) (contextstore.Change, error) {
		current := snap.Context.Value(m)
		if amount > math.MaxInt-current {
			return contextstore.Change{}, perrors.InvalidInput("%s would overflow: %d + %d", m, current, amount)
		}
		contextstore.Set(m, current+amount).Apply(&snap.Context)
		return contextstore.Change{Context: true}, nil
	})
	if err != nil {
		a.recordStoreError("increment", err)
		return nil, err
	}
	a.metrics.RecordIncrement(string(m))

	a.logger.Debug().
		Str("project_id", projectID).
		Str("metric", string(m)).
		Int("amount", amount).
		Msg("metric incremented")

	return a.CheckTriggers(ctx, projectID)
}

// ReadyTriggers returns every catalog trigger whose metric has reached its
// threshold. It ignores fired state.
func (a *Aggregator) ReadyTriggers(ctx context.Context, projectID string) ([]trigger.Definition, error) {
	c, err := a.Context(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return a.ready(c), nil
}

func (a *Aggregator) ready(c *contextstore.Context) []trigger.Definition {
	ready := []trigger.Definition{}
	for _, d := range a.catalog.All() {
		if d.Ready(c.Value(d.Metric)) {
			ready = append(ready, d)
		}
	}
	return ready
}

// TriggerProgress reports progress towards every catalog trigger.
func (a *Aggregator) TriggerProgress(ctx context.Context, projectID string) ([]Progress, error) {
	c, err := a.Context(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defs := a.catalog.All()
	out := make([]Progress, 0, len(defs))
	for _, d := range defs {
		current := c.Value(d.Metric)
		out = append(out, Progress{
			Trigger:    d,
			Current:    current,
			Threshold:  d.Threshold,
			Percentage: d.Percentage(current),
			Ready:      d.Ready(current),
		})
	}
	return out, nil
}

// CheckTriggers records every ready trigger that has not fired before as
// fired and pending, in one versioned write. Calling it again without new
// crossings changes nothing. The newly fired triggers are returned.
func (a *Aggregator) CheckTriggers(ctx context.Context, projectID string) ([]trigger.Definition, error) {
	var newly []trigger.Definition
	err := a.store.Mutate(ctx, projectID, func(snap *contextstore.Snapshot) (contextstore.Change, error) {
		newly = nil
		for _, d := range a.ready(&snap.Context) {
			if !snap.Fired.IsFired(d.ID) {
				newly = append(newly, d)
			}
		}
		if len(newly) == 0 {
			return contextstore.Change{}, nil
		}
		for _, d := range newly {
			snap.Fired.Fired = append(snap.Fired.Fired, d.ID)
			if !snap.Fired.IsPending(d.ID) {
				snap.Fired.Pending = append(snap.Fired.Pending, d.ID)
			}
		}
		return contextstore.Change{Fired: true}, nil
	})
	if err != nil {
		a.recordStoreError("check_triggers", err)
		return nil, err
	}
	if len(newly) == 0 {
		return []trigger.Definition{}, nil
	}

	ids := make([]string, len(newly))
	for i, d := range newly {
		ids[i] = d.ID
		a.metrics.RecordFired(d.ID)
	}
	a.logger.Info().Str("project_id", projectID).Strs("triggers", ids).Msg("triggers fired")

	if err := a.notifier.TriggersFired(ctx, projectID, newly); err != nil {
		a.logger.Warn().Err(err).Str("project_id", projectID).Msg("trigger notification failed")
	}
	return newly, nil
}

// MarkRegenerated moves triggerID from pending to completed and stamps
// "<id>_regenerated_at". It reports whether anything changed; a trigger
// that is not pending is left alone.
func (a *Aggregator) MarkRegenerated(ctx context.Context, projectID, triggerID string) (bool, error) {
	changed := false
	err := a.store.Mutate(ctx, projectID, func(snap *contextstore.Snapshot) (contextstore.Change, error) {
		changed = false
		if !snap.Fired.IsPending(triggerID) {
			return contextstore.Change{}, nil
		}
		snap.Fired.Pending = slices.DeleteFunc(snap.Fired.Pending, func(id string) bool { return id == triggerID })
		if !snap.Fired.IsCompleted(triggerID) {
			snap.Fired.Completed = append(snap.Fired.Completed, triggerID)
		}
		changed = true
		return contextstore.Change{Fired: true, Regenerated: []string{triggerID}}, nil
	})
	if err != nil {
		a.recordStoreError("mark_regenerated", err)
		return false, err
	}
	if changed {
		a.metrics.RecordRegenerated(triggerID)
		a.logger.Info().Str("project_id", projectID).Str("trigger", triggerID).Msg("regeneration completed")
	} else {
		a.logger.Debug().Str("project_id", projectID).Str("trigger", triggerID).Msg("trigger not pending; nothing to mark")
	}
	return changed, nil
}

// FiredState returns the fired, pending and completed trigger ids.
func (a *Aggregator) FiredState(ctx context.Context, projectID string) (*contextstore.FiredState, error) {
	snap, err := a.store.Load(ctx, projectID)
	if err != nil {
		a.recordStoreError("get", err)
		return nil, err
	}
	f := snap.Fired
	return &f, nil
}

// ContextQualityScore is the unweighted mean of every trigger's percentage,
// rounded to an integer in [0, 100].
func (a *Aggregator) ContextQualityScore(ctx context.Context, projectID string) (int, error) {
	c, err := a.Context(ctx, projectID)
	if err != nil {
		return 0, err
	}
	return QualityScore(a.catalog, c), nil
}

// QualityScore computes the context quality score of c against catalog.
func QualityScore(catalog *trigger.Catalog, c *contextstore.Context) int {
	defs := catalog.All()
	if len(defs) == 0 {
		return 0
	}
	var sum float64
	for _, d := range defs {
		sum += d.Percentage(c.Value(d.Metric))
	}
	return int(math.Round(sum / float64(len(defs))))
}

func (a *Aggregator) recordStoreError(op string, err error) {
	kind := "other"
	switch {
	case errors.Is(err, perrors.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, perrors.ErrConflict):
		kind = "conflict"
	case errors.Is(err, perrors.ErrUnavailable):
		kind = "unavailable"
	case errors.Is(err, perrors.ErrInvalidInput):
		kind = "invalid_input"
	}
	a.metrics.RecordStoreError(op, kind)
}
