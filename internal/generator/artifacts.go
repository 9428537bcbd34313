package generator

import (
	"fmt"
	"math"

	"github.com/p-blackswan/contextd/internal/contextstore"
)

// env carries what every artifact builder needs. context is nil for a
// first generation and set when regenerating.
type env struct {
	input   Input
	base    float64
	jitter  JitterSource
	context *contextstore.Context
}

func (e env) confidence() int {
	return int(math.Round(e.base + e.jitter.Jitter()))
}

func (e env) count(m contextstore.Metric) int {
	if e.context == nil {
		return 0
	}
	return e.context.Value(m)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func buildCanvas(e env) Canvas {
	industry := orDefault(e.input.Industry, "tech")

	segments := []string{
		"Small businesses (10-50 employees)",
		fmt.Sprintf("Early adopters in %s sector", industry),
		"Growth-stage startups",
	}
	if e.input.TargetMarket != "" {
		segments[0] = e.input.TargetMarket
	}

	props := []string{
		"Save 10+ hours per week on manual tasks",
		"Reduce operational costs by 30%",
		"Improve team collaboration and productivity",
	}
	if e.input.ValueProposition != "" {
		props = append([]string{e.input.ValueProposition}, props[:2]...)
	}

	revenue := []string{
		"Monthly subscription ($99-$499/month)",
		"Annual plans (2 months free)",
		"Enterprise custom pricing",
	}
	if e.input.Pricing != "" {
		revenue[0] = "Subscription: " + e.input.Pricing
	}

	return Canvas{
		CustomerSegments:  segments,
		ValuePropositions: props,
		Channels: []string{
			"Direct sales (outbound)",
			"Content marketing & SEO",
			"Partnerships with complementary tools",
		},
		CustomerRelationships: []string{
			"Dedicated account manager for enterprise",
			"Self-service onboarding",
			"Community-driven support",
		},
		RevenueStreams: revenue,
		KeyResources: []string{
			"Technology platform",
			"Brand and reputation",
			"Customer data and insights",
		},
		KeyActivities: []string{
			"Software development",
			"Customer support",
			"Marketing and sales",
		},
		KeyPartnerships: []string{
			"Cloud infrastructure providers",
			"Payment processors",
			"Integration partners",
		},
		CostStructure: []string{
			"Engineering salaries (40%)",
			"Cloud infrastructure (15%)",
			"Sales & marketing (30%)",
			"Operations (15%)",
		},
		ConfidenceScore: e.confidence(),
	}
}

func buildPersonas(e env) []Persona {
	return []Persona{
		{
			Name:         "Tech-Savvy Manager Maria",
			Role:         "Operations Manager",
			Demographics: "32 years old, MBA, 5+ years experience",
			Goals: []string{
				"Streamline team workflows",
				"Reduce manual errors",
				"Scale operations efficiently",
			},
			PainPoints: []string{
				"Too many tools, not enough integration",
				"Team productivity declining",
				"Manual processes eating up time",
			},
			BuyingBehavior:  "Researches extensively, needs ROI proof, involves team in decision",
			ConfidenceScore: e.confidence(),
		},
		{
			Name:         "Budget-Conscious Founder Frank",
			Role:         "CEO / Founder",
			Demographics: "28 years old, first-time founder, bootstrapped",
			Goals: []string{
				"Maximize efficiency with limited resources",
				"Grow without hiring too fast",
				"Build scalable processes early",
			},
			PainPoints: []string{
				"Tight budget constraints",
				"Wearing too many hats",
				"Need simple, effective tools",
			},
			BuyingBehavior:  "Price-sensitive, prefers monthly plans, needs quick wins",
			ConfidenceScore: e.confidence(),
		},
	}
}

func buildPlaybook(e env) Playbook {
	metrics := []string{
		"Demo-to-trial conversion: 40%",
		"Trial-to-paid conversion: 25%",
		"Average deal size: $3,600 ACV",
		"Sales cycle: 14-30 days",
	}
	if n := e.count(contextstore.DealsClosed); n > 0 {
		metrics = append(metrics, fmt.Sprintf("Closed deals to date: %d", n))
	}
	return Playbook{
		SalesProcess: []string{
			"1. Qualification: BANT (Budget, Authority, Need, Timeline)",
			"2. Discovery: Deep dive into pain points",
			"3. Demo: Personalized walkthrough",
			"4. Proposal: Custom pricing and implementation plan",
			"5. Close: Address objections, negotiate terms",
			"6. Onboarding: White-glove setup",
		},
		KeyObjections: []string{
			`"Too expensive" → Show ROI calculator`,
			`"Already using X" → Highlight differentiation`,
			`"Not ready to switch" → Offer migration support`,
			`"Need more features" → Roadmap preview`,
		},
		ValuePropsByPersona: map[string]string{
			"manager":   "Save your team 10+ hours per week, boost productivity 30%",
			"founder":   "Scale operations without hiring, reduce costs 25-40%",
			"executive": "Strategic insights, company-wide efficiency gains",
		},
		PricingStrategy: orDefault(e.input.Pricing,
			"Value-based pricing with tiered plans. Start at $99/mo for startups, up to custom enterprise pricing. Annual discount of 17% (2 months free)."),
		SuccessMetrics:  metrics,
		ConfidenceScore: e.confidence(),
	}
}

func buildCompetitive(e env) *Competitive {
	threats := []string{
		"Market leader could copy features",
		"New well-funded entrants",
		"Economic downturn affecting budgets",
	}
	if n := e.count(contextstore.CompetitorChanges); n > 0 {
		threats = append(threats, fmt.Sprintf("%d competitor moves tracked since onboarding", n))
	}
	return &Competitive{
		Competitors: []string{
			"Competitor A (market leader)",
			"Competitor B (fast-growing startup)",
			"Competitor C (legacy player)",
		},
		MarketPositioning: "Better UX + More affordable than market leader, More enterprise-ready than fast-growing startups",
		Differentiation: []string{
			"AI-powered automation (unique)",
			"Better integration ecosystem",
			"Superior onboarding experience",
			"More flexible pricing",
		},
		Opportunities: []string{
			"Underserved mid-market segment",
			"Geographic expansion (LATAM, Asia)",
			"Vertical-specific solutions",
		},
		Threats: threats,
	}
}

func buildValueProp(e env) ValueProp {
	headline := orDefault(e.input.ValueProposition,
		orDefault(e.input.BusinessDescription, "Save 10+ hours per week on manual tasks"))
	gains := []string{
		"More time for strategic work",
		"Predictable operating costs",
		"Happier, more productive team",
	}
	if n := e.count(contextstore.WebsiteVisitors); n > 0 {
		gains = append(gains, fmt.Sprintf("Messaging tested against %d website visitors", n))
	}
	return ValueProp{
		Headline: headline,
		CustomerJobs: []string{
			"Coordinate work across the team",
			"Report progress to stakeholders",
			"Keep tooling costs under control",
		},
		Pains: []string{
			"Manual processes eating up time",
			"Too many disconnected tools",
			"Errors from copy-paste workflows",
		},
		Gains: gains,
		PainRelievers: []string{
			"Automates repetitive workflows",
			"Integrates with existing tools",
		},
		GainCreators: []string{
			"Dashboards that show time saved",
			"Self-service onboarding in under a day",
		},
		ConfidenceScore: e.confidence(),
	}
}

func buildValidation(e env) Validation {
	run := e.count(contextstore.ValidationExperiments)
	v := Validation{
		ExperimentsRun: run,
		ValidatedAssumptions: []string{
			"Target customers feel the pain of manual workflows",
		},
		InvalidatedAssumptions: []string{},
		OpenQuestions: []string{
			"Will customers pay for annual plans up front?",
			"Which channel has the lowest acquisition cost?",
		},
		NextExperiments: []string{
			"Landing page test for pricing tiers",
			"Concierge onboarding with 5 customers",
			"Outbound campaign to a single vertical",
		},
		ConfidenceScore: e.confidence(),
	}
	if n := e.count(contextstore.CustomerInterviews); n > 0 {
		v.ValidatedAssumptions = append(v.ValidatedAssumptions,
			fmt.Sprintf("Problem confirmed in %d customer interviews", n))
	}
	if run == 0 {
		v.InvalidatedAssumptions = append(v.InvalidatedAssumptions, "None yet: no experiments recorded")
	}
	return v
}
