package debate

import (
	"fmt"
	"strings"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// System prompts for the three debate agents.

const bullSystemPrompt = `You are an equity options analyst arguing the bull case in a structured debate.

Your role is to build the strongest honest argument for a bullish position in the given stock.

Key responsibilities:
- Interpret momentum, trend, and volatility readings in the bull's favor where the data supports it
- Relate implied volatility rank to option buying or selling attractiveness
- Reference the candidate contract (strike, DTE, delta) when it strengthens the case
- Assign a conviction score that reflects how strong the evidence really is

Guidelines:
- Argue from the data provided, never from facts you cannot see
- Concede weak points instead of inventing support
- Keep the analysis under 200 words

Respond ONLY with valid JSON in this format:
{
  "analysis": "your bull case",
  "key_points": ["point 1", "point 2"],
  "conviction": 0.0,
  "contracts_referenced": ["AAPL 2025-08-15 190C"],
  "greeks_cited": {"delta": 0.35}
}
Do not include explanatory text outside the JSON.`

const bearSystemPrompt = `You are an equity options analyst arguing the bear case in a structured debate.

Your role is to rebut the bull argument and build the strongest honest case against a bullish position.

Key responsibilities:
- Attack the weakest links in the bull argument directly
- Surface risks the bull ignored: stretched momentum, weak trend, rich premium, upcoming catalysts
- Relate implied volatility and spread quality to the cost of being wrong
- Assign a conviction score that reflects how strong the rebuttal really is

Guidelines:
- Argue from the data provided, never from facts you cannot see
- Quote the bull's own claims when refuting them
- Keep the analysis under 200 words

Respond ONLY with valid JSON in this format:
{
  "analysis": "your bear case",
  "key_points": ["point 1", "point 2"],
  "conviction": 0.0,
  "contracts_referenced": [],
  "greeks_cited": {}
}
Do not include explanatory text outside the JSON.`

const riskSystemPrompt = `You are the risk arbiter of an equity options debate. You have heard the bull case and the bear case.

Your role is to weigh both arguments against the data and issue the final trade thesis.

Key responsibilities:
- Decide the direction: bullish, bearish, or neutral when the arguments genuinely balance
- Set a conviction that discounts whichever side argued past its evidence
- Name the concrete risk factors that could invalidate the thesis
- Recommend one actionable step sized to the conviction

Guidelines:
- Reward arguments grounded in the data, penalize rhetoric
- Prefer neutral over a forced call when conviction is low
- State risk factors as falsifiable conditions, not vague worries

Respond ONLY with valid JSON in this format:
{
  "direction": "bullish",
  "conviction": 0.0,
  "entry_rationale": "why enter (or stay out) now",
  "risk_factors": ["risk 1", "risk 2"],
  "recommended_action": "one concrete step",
  "bull_summary": "the bull case in one sentence",
  "bear_summary": "the bear case in one sentence"
}
Do not include explanatory text outside the JSON.`

// marketBlock renders the shared data snapshot every agent sees.
func marketBlock(mc domain.MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticker: %s (%s)\n", mc.Ticker, mc.Sector)
	fmt.Fprintf(&b, "Current Price: $%s\n", mc.CurrentPrice.StringFixed(2))
	fmt.Fprintf(&b, "52-Week Range: $%s - $%s\n", mc.Low52W.StringFixed(2), mc.High52W.StringFixed(2))
	fmt.Fprintf(&b, "IV Rank: %.1f | IV Percentile: %.1f | ATM IV (30d): %.1f%%\n",
		mc.IVRank, mc.IVPercentile, mc.ATMIV30D*100)
	fmt.Fprintf(&b, "RSI(14): %.1f | MACD Signal: %.3f | Put/Call Ratio: %.2f\n",
		mc.RSI14, mc.MACDSignal, mc.PutCallRatio)
	if mc.NextEarnings != nil {
		fmt.Fprintf(&b, "Next Earnings: %s\n", mc.NextEarnings.Format("2006-01-02"))
	} else {
		b.WriteString("Next Earnings: none scheduled\n")
	}
	fmt.Fprintf(&b, "Candidate Contract: %d DTE, $%s strike, %.2f delta target\n",
		mc.DTETarget, mc.TargetStrike.StringFixed(2), mc.TargetDelta)
	fmt.Fprintf(&b, "Data As Of: %s", mc.DataTimestamp.UTC().Format("2006-01-02 15:04 UTC"))
	return b.String()
}

// BullPrompt is the opening argument request.
func BullPrompt(mc domain.MarketContext) string {
	return fmt.Sprintf(`Build the bull case for %s from this market snapshot.

%s

Present your strongest bullish argument.`, mc.Ticker, marketBlock(mc))
}

// BearPrompt carries the bull's argument for rebuttal.
func BearPrompt(mc domain.MarketContext, bull domain.AgentResponse) string {
	return fmt.Sprintf(`Build the bear case for %s from this market snapshot and rebut the bull argument below.

%s

Bull argument (conviction %.2f):
%s

Key bull points:
%s

Present your strongest bearish rebuttal.`, mc.Ticker, marketBlock(mc),
		bull.Conviction, bull.Analysis, bulletList(bull.KeyPoints))
}

// RiskPrompt carries both arguments for the final verdict.
func RiskPrompt(mc domain.MarketContext, bull, bear domain.AgentResponse) string {
	return fmt.Sprintf(`Issue the final trade thesis for %s.

%s

Bull argument (conviction %.2f):
%s

Bear argument (conviction %.2f):
%s

Weigh both sides and deliver your verdict.`, mc.Ticker, marketBlock(mc),
		bull.Conviction, bull.Analysis, bear.Conviction, bear.Analysis)
}

func bulletList(points []string) string {
	if len(points) == 0 {
		return "- (none given)"
	}
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(p)
	}
	return b.String()
}
