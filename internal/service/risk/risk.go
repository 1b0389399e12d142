// Package risk scores campaigns from their budget, escrow coverage and
// duration. The score is an additive rule table clamped to 0-100; it is a
// placeholder policy with no calibration behind the weights.
package risk

import (
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/shopspring/decimal"
)

// Input holds the campaign parameters the score depends on.
type Input struct {
	Budget           decimal.Decimal
	EscrowPercentage decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
}

// Factor is one rule's contribution to the score.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// Assessment is the scored result.
type Assessment struct {
	Score   int              `json:"score"`
	Level   domain.RiskLevel `json:"level"`
	Factors []Factor         `json:"factors"`
}

type threshold struct {
	min    decimal.Decimal
	points int
	reason string
}

var budgetRules = []threshold{
	{decimal.NewFromInt(100000), 40, "budget of 100k or more"},
	{decimal.NewFromInt(50000), 30, "budget of 50k or more"},
	{decimal.NewFromInt(10000), 20, "budget of 10k or more"},
	{decimal.Zero, 10, "budget under 10k"},
}

// Score computes the risk assessment. Larger budgets, lower escrow
// percentages and shorter campaigns score higher.
func Score(in Input) Assessment {
	var factors []Factor

	for _, r := range budgetRules {
		if in.Budget.GreaterThanOrEqual(r.min) {
			factors = append(factors, Factor{Name: "budget", Points: r.points, Reason: r.reason})
			break
		}
	}

	pct := in.EscrowPercentage
	switch {
	case pct.LessThan(decimal.NewFromInt(25)):
		factors = append(factors, Factor{Name: "escrow", Points: 30, Reason: "escrow below 25%"})
	case pct.LessThan(decimal.NewFromInt(50)):
		factors = append(factors, Factor{Name: "escrow", Points: 20, Reason: "escrow below 50%"})
	case pct.LessThan(decimal.NewFromInt(100)):
		factors = append(factors, Factor{Name: "escrow", Points: 10, Reason: "escrow below 100%"})
	}

	days := in.EndDate.Sub(in.StartDate).Hours() / 24
	switch {
	case days < 7:
		factors = append(factors, Factor{Name: "duration", Points: 30, Reason: "runs under a week"})
	case days < 30:
		factors = append(factors, Factor{Name: "duration", Points: 15, Reason: "runs under a month"})
	default:
		factors = append(factors, Factor{Name: "duration", Points: 5, Reason: "runs a month or longer"})
	}

	score := 0
	for _, f := range factors {
		score += f.Points
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return Assessment{Score: score, Level: Level(score), Factors: factors}
}

// Level buckets a score: <=30 low, <=60 medium, else high.
func Level(score int) domain.RiskLevel {
	switch {
	case score <= 30:
		return domain.RiskLow
	case score <= 60:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
