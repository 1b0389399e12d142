package risk

import (
	"testing"
	"time"

	"github.com/ignite/creatorhub/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		in    Input
		score int
		level domain.RiskLevel
	}{
		{
			name:  "small, fully escrowed, long",
			in:    Input{Budget: decimal.NewFromInt(5000), EscrowPercentage: decimal.NewFromInt(100), StartDate: start, EndDate: start.AddDate(0, 2, 0)},
			score: 15,
			level: domain.RiskLow,
		},
		{
			name:  "mid budget, 20% escrow, 3 weeks",
			in:    Input{Budget: decimal.NewFromInt(10000), EscrowPercentage: decimal.NewFromInt(20), StartDate: start, EndDate: start.AddDate(0, 0, 21)},
			score: 65,
			level: domain.RiskHigh,
		},
		{
			name:  "large, no escrow, 3 days",
			in:    Input{Budget: decimal.NewFromInt(250000), EscrowPercentage: decimal.Zero, StartDate: start, EndDate: start.AddDate(0, 0, 3)},
			score: 100,
			level: domain.RiskHigh,
		},
		{
			name:  "50k, half escrow, 45 days",
			in:    Input{Budget: decimal.NewFromInt(50000), EscrowPercentage: decimal.NewFromInt(50), StartDate: start, EndDate: start.AddDate(0, 0, 45)},
			score: 45,
			level: domain.RiskMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Score(tt.in)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.level, a.Level)
			assert.NotEmpty(t, a.Factors)
		})
	}
}

func TestLevelBoundaries(t *testing.T) {
	assert.Equal(t, domain.RiskLow, Level(0))
	assert.Equal(t, domain.RiskLow, Level(30))
	assert.Equal(t, domain.RiskMedium, Level(31))
	assert.Equal(t, domain.RiskMedium, Level(60))
	assert.Equal(t, domain.RiskHigh, Level(61))
}
