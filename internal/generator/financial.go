package generator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Projection parameters.
const (
	DefaultMRR       = 5000
	ProjectionMonths = 12
	MonthlyGrowth    = 0.10
	CostRatio        = 0.6
)

// Projections returns twelve months of revenue, costs and profit starting
// from mrr. Month m earns round(mrr * 1.1^(m-1)); costs are 60% of revenue.
func Projections(mrr int) []MonthProjection {
	out := make([]MonthProjection, 0, ProjectionMonths)
	for month := 1; month <= ProjectionMonths; month++ {
		revenue := int(math.Round(float64(mrr) * math.Pow(1+MonthlyGrowth, float64(month-1))))
		costs := int(math.Round(float64(revenue) * CostRatio))
		out = append(out, MonthProjection{
			Month:   month,
			Revenue: revenue,
			Costs:   costs,
			Profit:  revenue - costs,
		})
	}
	return out
}

// StartingMRR picks the MRR to project from: the input's mrr, then
// existing_metrics.mrr, then DefaultMRR. Only a leading integer counts,
// so "4200.50" is 4200 and "$4200" is ignored.
func StartingMRR(in Input) int {
	if v, ok := leadingInt(string(in.MRR)); ok && v > 0 {
		return v
	}
	if in.ExistingMetrics != nil {
		if v, ok := leadingInt(string(in.ExistingMetrics.MRR)); ok && v > 0 {
			return v
		}
	}
	return DefaultMRR
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

func buildFinancials(e env) *Financials {
	mrr := StartingMRR(e.input)
	return &Financials{
		MonthlyProjections: Projections(mrr),
		Assumptions: []string{
			fmt.Sprintf("Starting MRR: $%d", mrr),
			fmt.Sprintf("Growth rate: %.0f%% monthly", MonthlyGrowth*100),
			"Cost ratio: 60% of revenue",
			"Customer churn: 5% monthly",
			"CAC payback: 6 months",
		},
	}
}
