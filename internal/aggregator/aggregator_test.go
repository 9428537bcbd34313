package aggregator

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/contextd/internal/contextstore"
	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/metrics"
	"github.com/p-blackswan/contextd/internal/project"
	"github.com/p-blackswan/contextd/internal/trigger"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingNotifier) TriggersFired(_ context.Context, _ string, fired []trigger.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(fired))
	for i, d := range fired {
		ids[i] = d.ID
	}
	r.calls = append(r.calls, ids)
	return nil
}

type fixture struct {
	agg      *Aggregator
	repo     *project.MemoryStore
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	id       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := project.NewMemoryStore()
	rec, err := repo.Create(context.Background(), project.CreateInput{Name: "Acme"})
	require.NoError(t, err)

	store := contextstore.New(repo, zerolog.Nop(), contextstore.WithClock(func() time.Time { return fixedNow }))
	n := &recordingNotifier{}
	m := metrics.New()
	return &fixture{
		agg:      New(store, trigger.Default(), zerolog.Nop(), WithNotifier(n), WithMetrics(m)),
		repo:     repo,
		notifier: n,
		metrics:  m,
		id:       rec.ID,
	}
}

func ids(defs []trigger.Definition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}

func intPtr(v int) *int { return &v }

func TestQualityScore_FreshProjectIsZero(t *testing.T) {
	f := newFixture(t)
	score, err := f.agg.ContextQualityScore(context.Background(), f.id)
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestQualityScore_UnweightedMean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.agg.UpdateContext(ctx, f.id, contextstore.Partial{
		CustomerInterviews:    intPtr(5),
		WebsiteVisitors:       intPtr(50),
		DealsClosed:           intPtr(0),
		RevenueMonths:         intPtr(3),
		CompetitorChanges:     intPtr(0),
		ValidationExperiments: intPtr(3),
	}))

	progress, err := f.agg.TriggerProgress(ctx, f.id)
	require.NoError(t, err)
	got := map[string]float64{}
	for _, p := range progress {
		got[p.Trigger.ID] = p.Percentage
	}
	assert.Equal(t, map[string]float64{
		"buyer-personas":        100,
		"value-proposition":     50,
		"sales-playbook":        0,
		"financial-projections": 100,
		"competitive-analysis":  0,
		"validation-insights":   100,
	}, got)

	score, err := f.agg.ContextQualityScore(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, 58, score)
}

func TestQualityScore_CapsOvershoot(t *testing.T) {
	c := contextstore.Default("p")
	c.CustomerInterviews = 500
	// One trigger at 100% out of six: 16.67 rounds to 17.
	assert.Equal(t, 17, QualityScore(trigger.Default(), &c))
}

func TestQualityScore_EmptyCatalog(t *testing.T) {
	empty, err := trigger.NewCatalog(nil)
	require.NoError(t, err)
	c := contextstore.Default("p")
	assert.Equal(t, 0, QualityScore(empty, &c))
}

func TestQualityScore_IgnoresTeamSize(t *testing.T) {
	c := contextstore.Default("p")
	c.TeamSize = 40
	assert.Equal(t, 0, QualityScore(trigger.Default(), &c))
}

func TestIncrementMetric_FiresBuyerPersonas(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fired, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas"}, ids(fired))

	ready, err := f.agg.ReadyTriggers(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas"}, ids(ready))

	state, err := f.agg.FiredState(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas"}, state.Fired)
	assert.Equal(t, []string{"buyer-personas"}, state.Pending)
	assert.Empty(t, state.Completed)

	assert.Equal(t, [][]string{{"buyer-personas"}}, f.notifier.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TriggersFired.WithLabelValues("buyer-personas")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MetricIncrements.WithLabelValues("customer_interviews")))
}

func TestIncrementMetric_Accumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		fired, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 1)
		require.NoError(t, err)
		assert.Empty(t, fired)
	}
	fired, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas"}, ids(fired))

	c, err := f.agg.Context(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, 5, c.CustomerInterviews)
}

func TestIncrementMetric_UnknownMetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "page_views", 1)
	assert.ErrorIs(t, err, perrors.ErrUnknownMetric)

	rec, err := f.repo.Get(ctx, f.id)
	require.NoError(t, err)
	assert.NotContains(t, rec.Metadata, contextstore.KeyContextData, "rejected metric must not touch the record")
}

func TestIncrementMetric_NegativeAmount(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.IncrementMetric(context.Background(), f.id, "deals_closed", -1)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestIncrementMetric_RejectsOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)

	_, err = f.agg.IncrementMetric(ctx, f.id, "customer_interviews", math.MaxInt)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	c, err := f.agg.Context(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, 5, c.CustomerInterviews, "a rejected increment must leave the counter alone")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreErrorsTotal.WithLabelValues("increment", "invalid_input")))

	_, err = f.agg.IncrementMetric(ctx, f.id, "customer_interviews", math.MaxInt-5)
	require.NoError(t, err)
	c, err = f.agg.Context(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, c.CustomerInterviews)
}

func TestIncrementMetric_LargeCountersKeepPrecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "website_visitors", 9007199254740993)
	require.NoError(t, err)

	c, err := f.agg.Context(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, 9007199254740993, c.WebsiteVisitors)
}

func TestIncrementMetric_TeamSizeIsInert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fired, err := f.agg.IncrementMetric(ctx, f.id, "team_size", 10)
	require.NoError(t, err)
	assert.Empty(t, fired)

	c, _ := f.agg.Context(ctx, f.id)
	assert.Equal(t, 11, c.TeamSize)
	score, _ := f.agg.ContextQualityScore(ctx, f.id)
	assert.Equal(t, 0, score)
}

func TestIncrementMetric_ProjectNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.IncrementMetric(context.Background(), "missing", "deals_closed", 1)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StoreErrorsTotal.WithLabelValues("increment", "not_found")))
}

func TestReadyTriggers_ExcludesHigherThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)
	_, err = f.agg.IncrementMetric(ctx, f.id, "deals_closed", 5)
	require.NoError(t, err)

	ready, err := f.agg.ReadyTriggers(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas"}, ids(ready), "sales-playbook needs 10 deals")
}

func TestCheckTriggers_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.agg.UpdateContext(ctx, f.id, contextstore.Set(contextstore.RevenueMonths, 3)))

	first, err := f.agg.CheckTriggers(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"financial-projections"}, ids(first))

	rec, _ := f.repo.Get(ctx, f.id)
	version := rec.Version

	second, err := f.agg.CheckTriggers(ctx, f.id)
	require.NoError(t, err)
	assert.Empty(t, second)

	state, err := f.agg.FiredState(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"financial-projections"}, state.Fired)
	assert.Equal(t, []string{"financial-projections"}, state.Pending)

	rec, _ = f.repo.Get(ctx, f.id)
	assert.Equal(t, version, rec.Version, "a no-op check does not write")
	assert.Len(t, f.notifier.calls, 1)
}

func TestCheckTriggers_NothingReady(t *testing.T) {
	f := newFixture(t)
	fired, err := f.agg.CheckTriggers(context.Background(), f.id)
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, f.notifier.calls)
}

func TestCheckTriggers_PendingIsUnioned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)
	_, err = f.agg.IncrementMetric(ctx, f.id, "validation_experiments", 3)
	require.NoError(t, err)

	state, err := f.agg.FiredState(ctx, f.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"buyer-personas", "validation-insights"}, state.Fired)
	assert.Equal(t, []string{"buyer-personas", "validation-insights"}, state.Pending)
}

func TestCheckTriggers_PreservesOtherMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, _ := f.repo.Get(ctx, f.id)
	rec.Metadata["onboarding_type"] = "idea"
	require.NoError(t, f.repo.UpdateMetadata(ctx, f.id, rec.Metadata, rec.Version))

	_, err := f.agg.IncrementMetric(ctx, f.id, "competitor_changes", 5)
	require.NoError(t, err)

	rec, _ = f.repo.Get(ctx, f.id)
	assert.Equal(t, "idea", rec.Metadata["onboarding_type"])
	assert.Equal(t, []any{"competitive-analysis"}, rec.Metadata[contextstore.KeyFiredTriggers])
}

func TestMarkRegenerated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)

	changed, err := f.agg.MarkRegenerated(ctx, f.id, "buyer-personas")
	require.NoError(t, err)
	assert.True(t, changed)

	state, err := f.agg.FiredState(ctx, f.id)
	require.NoError(t, err)
	assert.Empty(t, state.Pending)
	assert.Equal(t, []string{"buyer-personas"}, state.Completed)
	assert.Equal(t, []string{"buyer-personas"}, state.Fired)
	assert.Equal(t, "2026-05-01T12:00:00.000Z", state.RegeneratedAt["buyer-personas"])

	// Second call is a no-op: no duplicate completion, no write.
	rec, _ := f.repo.Get(ctx, f.id)
	version := rec.Version

	changed, err = f.agg.MarkRegenerated(ctx, f.id, "buyer-personas")
	require.NoError(t, err)
	assert.False(t, changed)

	state, _ = f.agg.FiredState(ctx, f.id)
	assert.Equal(t, []string{"buyer-personas"}, state.Completed)
	rec, _ = f.repo.Get(ctx, f.id)
	assert.Equal(t, version, rec.Version)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegenerationsTotal.WithLabelValues("buyer-personas")))
}

func TestMarkRegenerated_NotPendingIsNoop(t *testing.T) {
	f := newFixture(t)
	changed, err := f.agg.MarkRegenerated(context.Background(), f.id, "sales-playbook")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.agg.MarkRegenerated(context.Background(), f.id, "not-a-trigger")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFiredTriggerNeverRefires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 5)
	require.NoError(t, err)
	_, err = f.agg.MarkRegenerated(ctx, f.id, "buyer-personas")
	require.NoError(t, err)

	// Counter keeps climbing; the trigger stays completed.
	fired, err := f.agg.IncrementMetric(ctx, f.id, "customer_interviews", 20)
	require.NoError(t, err)
	assert.Empty(t, fired)

	// Even if the counter is lowered, nothing is un-fired.
	require.NoError(t, f.agg.UpdateContext(ctx, f.id, contextstore.Set(contextstore.CustomerInterviews, 0)))
	_, err = f.agg.CheckTriggers(ctx, f.id)
	require.NoError(t, err)

	state, _ := f.agg.FiredState(ctx, f.id)
	assert.Equal(t, []string{"buyer-personas"}, state.Fired)
	assert.Equal(t, []string{"buyer-personas"}, state.Completed)
	assert.Empty(t, state.Pending)
}

func TestTriggerProgress_Monotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prev := -1.0
	for i := 0; i < 12; i++ {
		progress, err := f.agg.TriggerProgress(ctx, f.id)
		require.NoError(t, err)
		var pct float64
		for _, p := range progress {
			if p.Trigger.ID == "sales-playbook" {
				pct = p.Percentage
				assert.Equal(t, i, p.Current)
				assert.Equal(t, 10, p.Threshold)
				assert.Equal(t, i >= 10, p.Ready)
			}
		}
		assert.GreaterOrEqual(t, pct, prev)
		prev = pct
		_, err = f.agg.IncrementMetric(ctx, f.id, "deals_closed", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 100.0, prev)
}

func TestCustomCatalogNeedsNoCodeChange(t *testing.T) {
	repo := project.NewMemoryStore()
	rec, _ := repo.Create(context.Background(), project.CreateInput{Name: "Acme"})
	catalog, err := trigger.NewCatalog([]trigger.Definition{
		{ID: "team-growth", Metric: contextstore.TeamSize, Threshold: 10, ArtifactType: "sales_playbook"},
	})
	require.NoError(t, err)
	agg := New(contextstore.New(repo, zerolog.Nop()), catalog, zerolog.Nop())

	fired, err := agg.IncrementMetric(context.Background(), rec.ID, "team_size", 9)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-growth"}, ids(fired))

	score, err := agg.ContextQualityScore(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, score)
}
