package debate

import (
	"fmt"

	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/indicators"
	"github.com/optionalpha/optionalpha/internal/scoring"
)

// FallbackModel marks a thesis produced without any model call.
const FallbackModel = "data-driven-fallback"

// FallbackThesis assembles a deterministic thesis from the scan data
// alone. Direction and conviction come straight from the indicators and
// composite score, so the same inputs always argue the same case. The
// caller stamps DurationMS.
func FallbackThesis(mc domain.MarketContext, score domain.TickerScore, disclaimer string) domain.TradeThesis {
	rsi := signalOr(score.Signals, indicators.SignalRSI, mc.RSI14)
	adx := signalOr(score.Signals, indicators.SignalADX, 0)
	sma := signalOr(score.Signals, indicators.SignalSMAAlignment, 0)

	direction := scoring.DetermineDirection(adx, rsi, sma)
	conviction := score.Score
	if conviction < 0 {
		conviction = 0
	}
	if conviction > 1 {
		conviction = 1
	}

	bullSummary := fmt.Sprintf(
		"RSI(14) at %.1f with SMA alignment %.2f; IV rank %.0f prices the upside optionality.",
		rsi, sma, mc.IVRank)
	bearSummary := fmt.Sprintf(
		"Trend strength (ADX %.1f) may not sustain the move, and IV rank %.0f raises the cost of being wrong.",
		adx, mc.IVRank)

	var rationale, action string
	switch direction {
	case domain.Bullish:
		rationale = fmt.Sprintf(
			"Composite score %.2f with oversold-to-recovering momentum (RSI %.1f) and trend strength ADX %.1f favor the long side.",
			score.Score, rsi, adx)
		action = fmt.Sprintf("Consider a call near the $%s strike around %d DTE, sized to %.0f%% conviction.",
			mc.TargetStrike.StringFixed(2), mc.DTETarget, conviction*100)
	case domain.Bearish:
		rationale = fmt.Sprintf(
			"Composite score %.2f with stretched momentum (RSI %.1f) and trend strength ADX %.1f favor the short side.",
			score.Score, rsi, adx)
		action = fmt.Sprintf("Consider a put near the $%s strike around %d DTE, sized to %.0f%% conviction.",
			mc.TargetStrike.StringFixed(2), mc.DTETarget, conviction*100)
	default:
		rationale = fmt.Sprintf(
			"Composite score %.2f without a confirmed trend (ADX %.1f) does not justify a directional position.",
			score.Score, adx)
		action = "Stand aside until trend strength confirms a direction."
	}

	riskFactors := []string{"Thesis generated without model review; indicator readings only."}
	if adx < 15 {
		riskFactors = append(riskFactors, fmt.Sprintf("Weak trend (ADX %.1f) makes directional signals unreliable.", adx))
	}
	if mc.IVRank > 70 {
		riskFactors = append(riskFactors, fmt.Sprintf("IV rank %.0f means premium is rich relative to the past year.", mc.IVRank))
	}
	if mc.NextEarnings != nil {
		riskFactors = append(riskFactors, fmt.Sprintf("Earnings on %s may reprice the position overnight.",
			mc.NextEarnings.Format("2006-01-02")))
	}

	return domain.TradeThesis{
		Direction:         direction,
		Conviction:        conviction,
		EntryRationale:    rationale,
		RiskFactors:       riskFactors,
		RecommendedAction: action,
		BullSummary:       bullSummary,
		BearSummary:       bearSummary,
		ModelUsed:         FallbackModel,
		TotalTokens:       0,
		Disclaimer:        disclaimer,
	}
}

func signalOr(signals map[string]float64, key string, fallback float64) float64 {
	if v, ok := signals[key]; ok {
		return v
	}
	return fallback
}
