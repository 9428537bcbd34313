package generator

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/p-blackswan/contextd/internal/contextstore"
)

// Artifact types a generator can produce.
const (
	BusinessModelCanvas  = "business_model_canvas"
	BuyerPersonas        = "buyer_personas"
	SalesPlaybook        = "sales_playbook"
	CompetitiveAnalysis  = "competitive_analysis"
	FinancialProjections = "financial_projections"
	ValueProposition     = "value_proposition"
	ValidationInsights   = "validation_insights"
)

// Onboarding types that switch optional artifacts on.
const (
	OnboardingGenerative = "generative"
	OnboardingIdea       = "idea"
	OnboardingExisting   = "existing"
)

// ArtifactTypes lists every type Regenerate accepts.
func ArtifactTypes() []string {
	return []string{
		BusinessModelCanvas,
		BuyerPersonas,
		SalesPlaybook,
		CompetitiveAnalysis,
		FinancialProjections,
		ValueProposition,
		ValidationInsights,
	}
}

// Loose is a scalar that founders send either as a JSON string or a number,
// e.g. "mrr": "12000" or "mrr": 12000. It keeps the raw text.
type Loose string

// UnmarshalJSON accepts strings, numbers and null.
func (l *Loose) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = Loose(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*l = Loose(n.String())
	return nil
}

// ExistingMetrics are figures an existing business reports at onboarding.
type ExistingMetrics struct {
	MRR       Loose `json:"mrr,omitempty"`
	Customers Loose `json:"customers,omitempty"`
	ChurnRate Loose `json:"churn_rate,omitempty"`
}

// Input is the free-form founder input artifacts are generated from.
type Input struct {
	ProjectID           string           `json:"project_id,omitempty"`
	OnboardingType      string           `json:"onboarding_type,omitempty"`
	BusinessDescription string           `json:"business_description,omitempty"`
	ValueProposition    string           `json:"value_proposition,omitempty"`
	TargetMarket        string           `json:"target_market,omitempty"`
	Industry            string           `json:"industry,omitempty"`
	Pricing             string           `json:"pricing,omitempty"`
	MRR                 Loose            `json:"mrr,omitempty"`
	ExistingMetrics     *ExistingMetrics `json:"existing_metrics,omitempty"`
}

type Canvas struct {
	CustomerSegments      []string `json:"customer_segments"`
	ValuePropositions     []string `json:"value_propositions"`
	Channels              []string `json:"channels"`
	CustomerRelationships []string `json:"customer_relationships"`
	RevenueStreams        []string `json:"revenue_streams"`
	KeyResources          []string `json:"key_resources"`
	KeyActivities         []string `json:"key_activities"`
	KeyPartnerships       []string `json:"key_partnerships"`
	CostStructure         []string `json:"cost_structure"`
	ConfidenceScore       int      `json:"confidence_score"`
}

type Persona struct {
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Demographics    string   `json:"demographics"`
	Goals           []string `json:"goals"`
	PainPoints      []string `json:"pain_points"`
	BuyingBehavior  string   `json:"buying_behavior"`
	ConfidenceScore int      `json:"confidence_score"`
}

type Playbook struct {
	SalesProcess        []string          `json:"sales_process"`
	KeyObjections       []string          `json:"key_objections"`
	ValuePropsByPersona map[string]string `json:"value_props_by_persona"`
	PricingStrategy     string            `json:"pricing_strategy"`
	SuccessMetrics      []string          `json:"success_metrics"`
	ConfidenceScore     int               `json:"confidence_score"`
}

type Competitive struct {
	Competitors       []string `json:"competitors"`
	MarketPositioning string   `json:"market_positioning"`
	Differentiation   []string `json:"differentiation"`
	Opportunities     []string `json:"opportunities"`
	Threats           []string `json:"threats"`
}

// MonthProjection is one month of a financial projection.
type MonthProjection struct {
	Month   int `json:"month"`
	Revenue int `json:"revenue"`
	Costs   int `json:"costs"`
	Profit  int `json:"profit"`
}

type Financials struct {
	MonthlyProjections []MonthProjection `json:"monthly_projections"`
	Assumptions        []string          `json:"assumptions"`
}

type ValueProp struct {
	Headline        string   `json:"headline"`
	CustomerJobs    []string `json:"customer_jobs"`
	Pains           []string `json:"pains"`
	Gains           []string `json:"gains"`
	PainRelievers   []string `json:"pain_relievers"`
	GainCreators    []string `json:"gain_creators"`
	ConfidenceScore int      `json:"confidence_score"`
}

type Validation struct {
	ExperimentsRun         int      `json:"experiments_run"`
	ValidatedAssumptions   []string `json:"validated_assumptions"`
	InvalidatedAssumptions []string `json:"invalidated_assumptions"`
	OpenQuestions          []string `json:"open_questions"`
	NextExperiments        []string `json:"next_experiments"`
	ConfidenceScore        int      `json:"confidence_score"`
}

// ArtifactSet is one full generation run.
type ArtifactSet struct {
	GenerationID             string       `json:"generation_id"`
	ProjectID                string       `json:"project_id,omitempty"`
	BusinessModelCanvas      Canvas       `json:"business_model_canvas"`
	BuyerPersonas            []Persona    `json:"buyer_personas"`
	SalesPlaybook            Playbook     `json:"sales_playbook"`
	CompetitiveAnalysis      *Competitive `json:"competitive_analysis,omitempty"`
	FinancialProjections     *Financials  `json:"financial_projections,omitempty"`
	TotalConfidenceScore     int          `json:"total_confidence_score"`
	GenerationContextQuality int          `json:"generation_context_quality"`
	GeneratedAt              time.Time    `json:"generated_at"`
}

// Regenerated is a single artifact rebuilt against a project's current context.
type Regenerated struct {
	GenerationID          string                `json:"generation_id"`
	ProjectID             string                `json:"project_id"`
	ArtifactType          string                `json:"artifact_type"`
	Artifact              any                   `json:"artifact"`
	ConfidenceScore       int                   `json:"confidence_score"`
	Regenerated           bool                  `json:"regenerated"`
	RegeneratedAt         time.Time             `json:"regenerated_at"`
	ConfidenceImprovement int                   `json:"confidence_improvement"`
	ContextQuality        int                   `json:"context_quality"`
	ContextData           *contextstore.Context `json:"context_data,omitempty"`
	Evidence              []string              `json:"evidence"`
}
