package domain

import "fmt"

// AgentRole identifies the debate agent that produced a response.
type AgentRole string

const (
	RoleBull AgentRole = "bull"
	RoleBear AgentRole = "bear"
)

// GreeksCited carries the Greeks an agent explicitly referenced, each
// optional.
type GreeksCited struct {
	Delta *float64 `json:"delta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Vega  *float64 `json:"vega,omitempty"`
	Rho   *float64 `json:"rho,omitempty"`
}

// AgentResponse is one side's argument in the debate.
type AgentResponse struct {
	Role                AgentRole   `json:"role"`
	Analysis            string      `json:"analysis"`
	KeyPoints           []string    `json:"key_points"`
	Conviction          float64     `json:"conviction"`
	ContractsReferenced []string    `json:"contracts_referenced,omitempty"`
	GreeksCited         GreeksCited `json:"greeks_cited,omitempty"`
	ModelUsed           string      `json:"model_used"`
	InputTokens         int         `json:"input_tokens"`
	OutputTokens        int         `json:"output_tokens"`
}

// NewAgentResponse validates role and conviction bounds.
func NewAgentResponse(role AgentRole, analysis string, keyPoints []string, conviction float64) (AgentResponse, error) {
	if role != RoleBull && role != RoleBear {
		return AgentResponse{}, fmt.Errorf("agent response: invalid role %q", role)
	}
	if conviction < 0 || conviction > 1 {
		return AgentResponse{}, fmt.Errorf("agent response %s: conviction %.3f outside [0, 1]", role, conviction)
	}
	return AgentResponse{
		Role:       role,
		Analysis:   analysis,
		KeyPoints:  keyPoints,
		Conviction: conviction,
	}, nil
}

// TradeThesis is the debate's final output. The disclaimer is mandatory
// and non-empty for every thesis, fallback included.
type TradeThesis struct {
	Direction         Direction `json:"direction"`
	Conviction        float64   `json:"conviction"`
	EntryRationale    string    `json:"entry_rationale"`
	RiskFactors       []string  `json:"risk_factors"`
	RecommendedAction string    `json:"recommended_action"`
	BullSummary       string    `json:"bull_summary"`
	BearSummary       string    `json:"bear_summary"`
	ModelUsed         string    `json:"model_used"`
	TotalTokens       int       `json:"total_tokens"`
	DurationMS        int64     `json:"duration_ms"`
	Disclaimer        string    `json:"disclaimer"`
}

// NewTradeThesis validates direction, conviction, and the disclaimer.
func NewTradeThesis(direction Direction, conviction float64, entryRationale string,
	riskFactors []string, recommendedAction, bullSummary, bearSummary, modelUsed string,
	totalTokens int, durationMS int64, disclaimer string) (TradeThesis, error) {
	if !direction.Valid() {
		return TradeThesis{}, fmt.Errorf("trade thesis: invalid direction %q", direction)
	}
	if conviction < 0 || conviction > 1 {
		return TradeThesis{}, fmt.Errorf("trade thesis: conviction %.3f outside [0, 1]", conviction)
	}
	if disclaimer == "" {
		return TradeThesis{}, fmt.Errorf("trade thesis: disclaimer is empty")
	}
	return TradeThesis{
		Direction:         direction,
		Conviction:        conviction,
		EntryRationale:    entryRationale,
		RiskFactors:       riskFactors,
		RecommendedAction: recommendedAction,
		BullSummary:       bullSummary,
		BearSummary:       bearSummary,
		ModelUsed:         modelUsed,
		TotalTokens:       totalTokens,
		DurationMS:        durationMS,
		Disclaimer:        disclaimer,
	}, nil
}
