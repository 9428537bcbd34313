// Package generator builds AI-style business artifacts whose confidence is
// calibrated by how much context a project has accumulated.
package generator

import (
	"context"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/contextd/internal/contextstore"
	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/lru"
	"github.com/p-blackswan/contextd/internal/metrics"
)

// Confidence calibration: zero context yields BaseConfidence, full context
// adds up to 25 points.
const (
	BaseConfidence  = 70.0
	QualityWeight   = 0.25
	DefaultCacheLen = 256
)

// ContextSource is the slice of the aggregator the generator reads.
type ContextSource interface {
	Context(ctx context.Context, projectID string) (*contextstore.Context, error)
	ContextQualityScore(ctx context.Context, projectID string) (int, error)
}

// Generator produces artifact sets and single-artifact regenerations.
type Generator struct {
	source  ContextSource
	jitter  JitterSource
	latest  *lru.Cache[string, *ArtifactSet]
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
	logger  zerolog.Logger

	cacheLen int
}

// Option configures a Generator.
type Option func(*Generator)

func WithJitter(j JitterSource) Option {
	return func(g *Generator) { g.jitter = j }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithCacheSize bounds how many projects keep their latest artifact set.
func WithCacheSize(n int) Option {
	return func(g *Generator) { g.cacheLen = n }
}

// WithIDs overrides generation id minting.
func WithIDs(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

// New creates a Generator. source may be nil, in which case every
// generation runs at zero context quality and Regenerate is unavailable.
func New(source ContextSource, logger zerolog.Logger, opts ...Option) *Generator {
	g := &Generator{
		source:   source,
		jitter:   DefaultJitter,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		logger:   logger.With().Str("component", "generator").Logger(),
		cacheLen: DefaultCacheLen,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cacheLen < 1 {
		g.cacheLen = DefaultCacheLen
	}
	g.latest = lru.New[string, *ArtifactSet](g.cacheLen,
		lru.WithOnEvict[string, *ArtifactSet](func(projectID string, _ *ArtifactSet) {
			g.logger.Debug().Str("project_id", projectID).Msg("latest artifact set evicted")
		}),
	)
	return g
}

// ConfidenceFor maps a context quality score to the base confidence.
func ConfidenceFor(quality int) float64 {
	return BaseConfidence + float64(quality)*QualityWeight
}

// GenerateAll builds the canvas, two personas and a sales playbook, plus a
// competitive analysis for generative/idea onboarding or financial
// projections for existing businesses.
func (g *Generator) GenerateAll(ctx context.Context, in Input) (*ArtifactSet, error) {
	quality := 0
	if in.ProjectID != "" && g.source != nil {
		q, err := g.source.ContextQualityScore(ctx, in.ProjectID)
		if err != nil {
			return nil, err
		}
		quality = q
	}

	e := env{input: in, base: ConfidenceFor(quality), jitter: g.jitter}
	set := &ArtifactSet{
		GenerationID:             g.newID(),
		ProjectID:                in.ProjectID,
		BusinessModelCanvas:      buildCanvas(e),
		BuyerPersonas:            buildPersonas(e),
		SalesPlaybook:            buildPlaybook(e),
		TotalConfidenceScore:     int(math.Round(e.base)),
		GenerationContextQuality: quality,
		GeneratedAt:              g.now().UTC(),
	}
	produced := []string{BusinessModelCanvas, BuyerPersonas, SalesPlaybook}

	switch in.OnboardingType {
	case OnboardingGenerative, OnboardingIdea:
		set.CompetitiveAnalysis = buildCompetitive(e)
		produced = append(produced, CompetitiveAnalysis)
	case OnboardingExisting:
		set.FinancialProjections = buildFinancials(e)
		produced = append(produced, FinancialProjections)
	}

	for _, a := range produced {
		g.metrics.RecordArtifact(a, "generate")
	}
	g.metrics.ObserveQuality(quality)

	if in.ProjectID != "" {
		g.latest.Put(in.ProjectID, set)
	}

	g.logger.Info().
		Str("generation_id", set.GenerationID).
		Str("project_id", in.ProjectID).
		Str("onboarding_type", in.OnboardingType).
		Int("context_quality", quality).
		Strs("artifacts", produced).
		Msg("artifacts generated")

	return set, nil
}

// Regenerate rebuilds one artifact type for projectID against the project's
// current context. The latest cached set, if any, is updated in place of
// the old artifact.
func (g *Generator) Regenerate(ctx context.Context, projectID, artifactType string, in Input) (*Regenerated, error) {
	if !validType(artifactType) {
		return nil, perrors.InvalidInput("unknown artifact type %q", artifactType)
	}
	if projectID == "" {
		return nil, perrors.InvalidInput("project id is required")
	}
	if g.source == nil {
		return nil, perrors.InvalidInput("regeneration needs a context source")
	}

	c, err := g.source.Context(ctx, projectID)
	if err != nil {
		return nil, err
	}
	quality, err := g.source.ContextQualityScore(ctx, projectID)
	if err != nil {
		return nil, err
	}

	in.ProjectID = projectID
	e := env{input: in, base: ConfidenceFor(quality), jitter: g.jitter, context: c}
	artifact, score := build(artifactType, e)

	out := &Regenerated{
		GenerationID:          g.newID(),
		ProjectID:             projectID,
		ArtifactType:          artifactType,
		Artifact:              artifact,
		ConfidenceScore:       score,
		Regenerated:           true,
		RegeneratedAt:         g.now().UTC(),
		ConfidenceImprovement: int(math.Round(float64(quality) * QualityWeight)),
		ContextQuality:        quality,
		ContextData:           c,
		Evidence:              Evidence(c),
	}

	g.patchLatest(projectID, artifactType, artifact)
	g.metrics.RecordArtifact(artifactType, "regenerate")
	g.metrics.ObserveQuality(quality)

	g.logger.Info().
		Str("generation_id", out.GenerationID).
		Str("project_id", projectID).
		Str("artifact_type", artifactType).
		Int("context_quality", quality).
		Msg("artifact regenerated")

	return out, nil
}

// Latest returns the most recent artifact set generated for projectID.
func (g *Generator) Latest(projectID string) (*ArtifactSet, bool) {
	return g.latest.Get(projectID)
}

// Evidence lists the non-zero context counters a regeneration drew on.
func Evidence(c *contextstore.Context) []string {
	out := []string{}
	if c == nil {
		return out
	}
	for _, m := range contextstore.Metrics() {
		if m == contextstore.TeamSize {
			continue
		}
		if v := c.Value(m); v > 0 {
			out = append(out, evidenceNote(m, v))
		}
	}
	return out
}

func evidenceNote(m contextstore.Metric, v int) string {
	switch m {
	case contextstore.CustomerInterviews:
		return plural(v, "customer interview")
	case contextstore.WebsiteVisitors:
		return plural(v, "website visitor")
	case contextstore.DealsClosed:
		return plural(v, "closed deal")
	case contextstore.RevenueMonths:
		return plural(v, "month") + " of revenue data"
	case contextstore.CompetitorChanges:
		return plural(v, "tracked competitor change")
	case contextstore.ValidationExperiments:
		return plural(v, "validation experiment")
	}
	return plural(v, string(m))
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

func validType(t string) bool {
	return slices.Contains(ArtifactTypes(), t)
}

// build dispatches on artifact type and returns the artifact with its
// confidence score.
func build(artifactType string, e env) (any, int) {
	switch artifactType {
	case BusinessModelCanvas:
		c := buildCanvas(e)
		return c, c.ConfidenceScore
	case BuyerPersonas:
		p := buildPersonas(e)
		sum := 0
		for _, x := range p {
			sum += x.ConfidenceScore
		}
		return p, int(math.Round(float64(sum) / float64(len(p))))
	case SalesPlaybook:
		p := buildPlaybook(e)
		return p, p.ConfidenceScore
	case CompetitiveAnalysis:
		return buildCompetitive(e), e.confidence()
	case FinancialProjections:
		return buildFinancials(e), e.confidence()
	case ValueProposition:
		v := buildValueProp(e)
		return v, v.ConfidenceScore
	case ValidationInsights:
		v := buildValidation(e)
		return v, v.ConfidenceScore
	}
	return nil, 0
}

func (g *Generator) patchLatest(projectID, artifactType string, artifact any) {
	prev, ok := g.latest.Peek(projectID)
	if !ok {
		return
	}
	next := *prev
	switch a := artifact.(type) {
	case Canvas:
		next.BusinessModelCanvas = a
	case []Persona:
		next.BuyerPersonas = a
	case Playbook:
		next.SalesPlaybook = a
	case *Competitive:
		next.CompetitiveAnalysis = a
	case *Financials:
		next.FinancialProjections = a
	default:
		// Value proposition and validation insights are not part of a set.
		return
	}
	g.latest.Put(projectID, &next)
	g.logger.Debug().Str("project_id", projectID).Str("artifact_type", artifactType).Msg("latest set patched")
}
