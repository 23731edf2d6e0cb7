package debate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/indicators"
)

func TestFallbackThesisBullishSetup(t *testing.T) {
	thesis := FallbackThesis(testContext(t), testScore(), "Research only.")

	assert.Equal(t, domain.Bullish, thesis.Direction)
	assert.InDelta(t, 0.72, thesis.Conviction, 1e-9)
	assert.Equal(t, FallbackModel, thesis.ModelUsed)
	assert.Zero(t, thesis.TotalTokens)
	assert.Equal(t, "Research only.", thesis.Disclaimer)

	assert.Contains(t, thesis.BullSummary, "RSI(14) at 38.2")
	assert.Contains(t, thesis.BearSummary, "ADX 25.0")
	assert.Contains(t, thesis.RecommendedAction, "call")
	assert.Contains(t, thesis.RecommendedAction, "$195.00")
	assert.Contains(t, thesis.RecommendedAction, "45 DTE")

	// Earnings inside the context always surface as a risk factor.
	assert.Condition(t, func() bool {
		for _, r := range thesis.RiskFactors {
			if r == "Earnings on 2025-08-12 may reprice the position overnight." {
				return true
			}
		}
		return false
	})
}

func TestFallbackThesisNeutralWhenTrendWeak(t *testing.T) {
	score := testScore()
	score.Signals[indicators.SignalADX] = 9

	thesis := FallbackThesis(testContext(t), score, "Research only.")

	assert.Equal(t, domain.Neutral, thesis.Direction)
	assert.Contains(t, thesis.RecommendedAction, "Stand aside")

	var weakTrend bool
	for _, r := range thesis.RiskFactors {
		if r == "Weak trend (ADX 9.0) makes directional signals unreliable." {
			weakTrend = true
		}
	}
	assert.True(t, weakTrend)
}

func TestFallbackThesisRichPremiumRisk(t *testing.T) {
	mc := testContext(t)
	mc.IVRank = 88

	thesis := FallbackThesis(mc, testScore(), "Research only.")

	var richIV bool
	for _, r := range thesis.RiskFactors {
		if r == "IV rank 88 means premium is rich relative to the past year." {
			richIV = true
		}
	}
	assert.True(t, richIV)
}

func TestFallbackThesisClampsConviction(t *testing.T) {
	score := testScore()
	score.Score = 1.3

	thesis := FallbackThesis(testContext(t), score, "Research only.")
	assert.Equal(t, 1.0, thesis.Conviction)

	score.Score = -0.2
	thesis = FallbackThesis(testContext(t), score, "Research only.")
	assert.Zero(t, thesis.Conviction)
}

func TestFallbackThesisMissingSignalsUseContext(t *testing.T) {
	score := domain.TickerScore{Ticker: "AAPL", Score: 0.4}

	thesis := FallbackThesis(testContext(t), score, "Research only.")

	// Without an ADX signal the trend reads as unconfirmed.
	assert.Equal(t, domain.Neutral, thesis.Direction)
	assert.Contains(t, thesis.BullSummary, "38.2", "RSI falls back to the market context")
}
