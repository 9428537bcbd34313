package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/contextd/internal/contextstore"
	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/metrics"
)

var fixedNow = time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)

type fakeSource struct {
	quality  int
	contexts map[string]*contextstore.Context
	calls    int
}

func (f *fakeSource) Context(_ context.Context, projectID string) (*contextstore.Context, error) {
	c, ok := f.contexts[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, perrors.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSource) ContextQualityScore(_ context.Context, projectID string) (int, error) {
	f.calls++
	if _, ok := f.contexts[projectID]; !ok {
		return 0, fmt.Errorf("project %s: %w", projectID, perrors.ErrNotFound)
	}
	return f.quality, nil
}

func newSource() *fakeSource {
	c := contextstore.Default("p1")
	c.CustomerInterviews = 5
	c.WebsiteVisitors = 50
	c.RevenueMonths = 3
	c.ValidationExperiments = 3
	return &fakeSource{quality: 58, contexts: map[string]*contextstore.Context{"p1": &c}}
}

func newGenerator(src ContextSource, opts ...Option) *Generator {
	n := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { n++; return fmt.Sprintf("gen-%d", n) }),
	}
	return New(src, zerolog.Nop(), append(base, opts...)...)
}

func TestProjections(t *testing.T) {
	p := Projections(5000)
	require.Len(t, p, 12)

	assert.Equal(t, 5000, p[0].Revenue)
	assert.Equal(t, 5500, p[1].Revenue)
	assert.Equal(t, 14266, p[11].Revenue)

	for i, m := range p {
		assert.Equal(t, i+1, m.Month)
		assert.Equal(t, int(roundHalfUp(float64(m.Revenue)*0.6)), m.Costs)
		assert.Equal(t, m.Revenue-m.Costs, m.Profit)
	}
	assert.Equal(t, p, Projections(5000), "projections are deterministic")
}

func roundHalfUp(v float64) float64 {
	return float64(int64(v + 0.5))
}

func TestStartingMRR(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{"plain", Input{MRR: "12000"}, 12000},
		{"decimal truncated", Input{MRR: "4200.50"}, 4200},
		{"trailing text", Input{MRR: " 300abc"}, 300},
		{"currency prefix ignored", Input{MRR: "$4200"}, DefaultMRR},
		{"zero falls back", Input{MRR: "0"}, DefaultMRR},
		{"empty", Input{}, DefaultMRR},
		{"existing metrics", Input{ExistingMetrics: &ExistingMetrics{MRR: "8000"}}, 8000},
		{"input wins over existing", Input{MRR: "100", ExistingMetrics: &ExistingMetrics{MRR: "8000"}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StartingMRR(tt.in))
		})
	}
}

func TestInputAcceptsNumericMRR(t *testing.T) {
	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{"mrr": 7300.9, "existing_metrics": {"mrr": "9000"}}`), &in))
	assert.Equal(t, Loose("7300.9"), in.MRR)
	assert.Equal(t, 7300, StartingMRR(in))

	require.NoError(t, json.Unmarshal([]byte(`{"mrr": null}`), &in))
	assert.Equal(t, Loose(""), in.MRR)

	assert.Error(t, json.Unmarshal([]byte(`{"mrr": [1]}`), &in))
}

func TestGenerateAll_OptionalArtifacts(t *testing.T) {
	g := newGenerator(nil)
	ctx := context.Background()

	existing, err := g.GenerateAll(ctx, Input{OnboardingType: OnboardingExisting, MRR: "5000"})
	require.NoError(t, err)
	require.NotNil(t, existing.FinancialProjections)
	assert.Nil(t, existing.CompetitiveAnalysis)
	assert.Equal(t, 14266, existing.FinancialProjections.MonthlyProjections[11].Revenue)
	assert.Contains(t, existing.FinancialProjections.Assumptions, "Starting MRR: $5000")

	for _, kind := range []string{OnboardingIdea, OnboardingGenerative} {
		set, err := g.GenerateAll(ctx, Input{OnboardingType: kind})
		require.NoError(t, err)
		assert.NotNil(t, set.CompetitiveAnalysis, kind)
		assert.Nil(t, set.FinancialProjections, kind)
	}

	plain, err := g.GenerateAll(ctx, Input{})
	require.NoError(t, err)
	assert.Nil(t, plain.CompetitiveAnalysis)
	assert.Nil(t, plain.FinancialProjections)
	assert.Len(t, plain.BuyerPersonas, 2)
}

func TestGenerateAll_WithoutProjectUsesZeroQuality(t *testing.T) {
	src := newSource()
	g := newGenerator(src)

	set, err := g.GenerateAll(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, 0, src.calls)
	assert.Equal(t, 0, set.GenerationContextQuality)
	assert.Equal(t, 70, set.TotalConfidenceScore)
	assert.Equal(t, 73, set.BusinessModelCanvas.ConfidenceScore)
	assert.Equal(t, "gen-1", set.GenerationID)
	assert.Equal(t, fixedNow, set.GeneratedAt)

	_, ok := g.Latest("")
	assert.False(t, ok)
}

func TestGenerateAll_CalibratedByQuality(t *testing.T) {
	g := newGenerator(newSource(), WithJitter(FixedJitter(0)))

	set, err := g.GenerateAll(context.Background(), Input{ProjectID: "p1", Industry: "fintech"})
	require.NoError(t, err)
	assert.Equal(t, 58, set.GenerationContextQuality)
	// 70 + 58*0.25 = 84.5
	assert.Equal(t, 85, set.TotalConfidenceScore)
	assert.Equal(t, 85, set.SalesPlaybook.ConfidenceScore)
	for _, p := range set.BuyerPersonas {
		assert.Equal(t, 85, p.ConfidenceScore)
	}
	assert.Contains(t, set.BusinessModelCanvas.CustomerSegments, "Early adopters in fintech sector")

	latest, ok := g.Latest("p1")
	require.True(t, ok)
	assert.Same(t, set, latest)
}

func TestGenerateAll_ConfidenceRange(t *testing.T) {
	src := newSource()
	for _, q := range []int{0, 50, 100} {
		src.quality = q
		g := newGenerator(src, WithJitter(NewSeededJitter(int64(q))))
		set, err := g.GenerateAll(context.Background(), Input{ProjectID: "p1"})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, set.BusinessModelCanvas.ConfidenceScore, set.TotalConfidenceScore)
		assert.LessOrEqual(t, set.BusinessModelCanvas.ConfidenceScore, 100)
		assert.GreaterOrEqual(t, set.TotalConfidenceScore, 70)
		assert.LessOrEqual(t, set.TotalConfidenceScore, 95)
	}
}

func TestGenerateAll_ProjectNotFound(t *testing.T) {
	g := newGenerator(newSource())
	_, err := g.GenerateAll(context.Background(), Input{ProjectID: "nope"})
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestGenerateAll_Metrics(t *testing.T) {
	m := metrics.New()
	g := newGenerator(nil, WithMetrics(m))
	_, err := g.GenerateAll(context.Background(), Input{OnboardingType: OnboardingExisting})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsGenerated.WithLabelValues(BusinessModelCanvas, "generate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsGenerated.WithLabelValues(FinancialProjections, "generate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ArtifactsGenerated.WithLabelValues(CompetitiveAnalysis, "generate")))
}

func TestRegenerate_EveryType(t *testing.T) {
	g := newGenerator(newSource())

	for _, artifactType := range ArtifactTypes() {
		t.Run(artifactType, func(t *testing.T) {
			out, err := g.Regenerate(context.Background(), "p1", artifactType, Input{})
			require.NoError(t, err)
			assert.Equal(t, artifactType, out.ArtifactType)
			assert.True(t, out.Regenerated)
			assert.Equal(t, fixedNow, out.RegeneratedAt)
			assert.Equal(t, 58, out.ContextQuality)
			// round(58 * 0.25) = round(14.5)
			assert.Equal(t, 15, out.ConfidenceImprovement)
			// 84.5 + 2.5
			assert.Equal(t, 87, out.ConfidenceScore)
			require.NotNil(t, out.ContextData)
			assert.Equal(t, 5, out.ContextData.CustomerInterviews)
			assert.NotNil(t, out.Artifact)
		})
	}
}

func TestRegenerate_DispatchesOnType(t *testing.T) {
	g := newGenerator(newSource())
	ctx := context.Background()

	out, err := g.Regenerate(ctx, "p1", BuyerPersonas, Input{})
	require.NoError(t, err)
	personas, ok := out.Artifact.([]Persona)
	require.True(t, ok)
	assert.Len(t, personas, 2)

	out, err = g.Regenerate(ctx, "p1", ValidationInsights, Input{})
	require.NoError(t, err)
	v, ok := out.Artifact.(Validation)
	require.True(t, ok)
	assert.Equal(t, 3, v.ExperimentsRun)
	assert.Contains(t, v.ValidatedAssumptions, "Problem confirmed in 5 customer interviews")

	out, err = g.Regenerate(ctx, "p1", FinancialProjections, Input{MRR: "1000"})
	require.NoError(t, err)
	f, ok := out.Artifact.(*Financials)
	require.True(t, ok)
	assert.Equal(t, 1000, f.MonthlyProjections[0].Revenue)
}

func TestRegenerate_Evidence(t *testing.T) {
	g := newGenerator(newSource())
	out, err := g.Regenerate(context.Background(), "p1", ValueProposition, Input{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"5 customer interviews",
		"50 website visitors",
		"3 months of revenue data",
		"3 validation experiments",
	}, out.Evidence)

	vp := out.Artifact.(ValueProp)
	assert.Contains(t, vp.Gains, "Messaging tested against 50 website visitors")
}

func TestRegenerate_Errors(t *testing.T) {
	g := newGenerator(newSource())
	ctx := context.Background()

	_, err := g.Regenerate(ctx, "p1", "pitch_deck", Input{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = g.Regenerate(ctx, "", BusinessModelCanvas, Input{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = g.Regenerate(ctx, "missing", BusinessModelCanvas, Input{})
	assert.ErrorIs(t, err, perrors.ErrNotFound)

	_, err = newGenerator(nil).Regenerate(ctx, "p1", BusinessModelCanvas, Input{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestRegenerate_PatchesLatestSet(t *testing.T) {
	src := newSource()
	src.quality = 0
	g := newGenerator(src)
	ctx := context.Background()

	set, err := g.GenerateAll(ctx, Input{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 73, set.BusinessModelCanvas.ConfidenceScore)

	src.quality = 100
	_, err = g.Regenerate(ctx, "p1", BusinessModelCanvas, Input{})
	require.NoError(t, err)

	latest, ok := g.Latest("p1")
	require.True(t, ok)
	assert.Equal(t, 98, latest.BusinessModelCanvas.ConfidenceScore)
	assert.Equal(t, set.GenerationID, latest.GenerationID)
	assert.Equal(t, 73, set.BusinessModelCanvas.ConfidenceScore, "the original set is not mutated")
}

func TestLatest_BoundedCache(t *testing.T) {
	src := newSource()
	for _, id := range []string{"a", "b", "c"} {
		c := contextstore.Default(id)
		src.contexts[id] = &c
	}
	g := newGenerator(src, WithCacheSize(2))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := g.GenerateAll(ctx, Input{ProjectID: id})
		require.NoError(t, err)
	}
	_, ok := g.Latest("a")
	assert.False(t, ok)
	_, ok = g.Latest("c")
	assert.True(t, ok)
}

func TestSeededJitter(t *testing.T) {
	a, b := NewSeededJitter(42), NewSeededJitter(42)
	for i := 0; i < 100; i++ {
		x := a.Jitter()
		assert.Equal(t, x, b.Jitter())
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, MaxJitter)
	}
	assert.Equal(t, 2.5, DefaultJitter.Jitter())
}

func TestRegeneratedJSON(t *testing.T) {
	g := newGenerator(newSource())
	out, err := g.Regenerate(context.Background(), "p1", SalesPlaybook, Input{})
	require.NoError(t, err)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, true, decoded["regenerated"])
	assert.Equal(t, "2026-06-02T08:00:00Z", decoded["regenerated_at"])
	assert.Equal(t, "sales_playbook", decoded["artifact_type"])
	assert.Contains(t, decoded["artifact"], "sales_process")
}
