// Package debate runs the Bull -> Bear -> Risk agent chain that turns a
// scanned ticker into a written trade thesis. Every failure path ends
// in a deterministic data-driven thesis, so a debate always produces a
// result even with the model server down.
package debate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/llm"
	"github.com/optionalpha/optionalpha/internal/metrics"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// Orchestrator drives the three agents and owns thesis persistence.
type Orchestrator struct {
	chat       ports.ChatClient
	repo       ports.Repository
	disclaimer string
	persist    bool
	logger     zerolog.Logger
}

// NewOrchestrator builds the debate runner. repo may be nil when
// persistence is disabled.
func NewOrchestrator(chat ports.ChatClient, repo ports.Repository, cfg *config.Config) *Orchestrator {
	disclaimer := cfg.Debate.Disclaimer
	if disclaimer == "" {
		disclaimer = config.DefaultDisclaimer
	}
	return &Orchestrator{
		chat:       chat,
		repo:       repo,
		disclaimer: disclaimer,
		persist:    cfg.Debate.PersistResults && repo != nil,
		logger:     config.NewLogger("debate"),
	}
}

// Run debates one ticker and always returns a thesis: the agents' when
// the model cooperates, the data-driven fallback otherwise.
func (o *Orchestrator) Run(ctx context.Context, mc domain.MarketContext, score domain.TickerScore) domain.TradeThesis {
	start := time.Now()

	thesis, err := o.debate(ctx, mc, start)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("ticker", mc.Ticker).
			Msg("Debate failed, substituting data-driven thesis")
		metrics.DebateFallbacks.Inc()
		thesis = FallbackThesis(mc, score, o.disclaimer)
		thesis.DurationMS = time.Since(start).Milliseconds()
	}

	metrics.DebateDuration.Observe(float64(time.Since(start).Milliseconds()))
	o.persistThesis(ctx, mc.Ticker, thesis)
	return thesis
}

// debate runs the full agent chain; any error means fallback.
func (o *Orchestrator) debate(ctx context.Context, mc domain.MarketContext, start time.Time) (domain.TradeThesis, error) {
	if err := o.chat.ValidateModel(ctx); err != nil {
		return domain.TradeThesis{}, fmt.Errorf("model check: %w", err)
	}

	var bull domain.AgentResponse
	in, out, model, err := o.exchange(ctx, string(domain.RoleBull), bullSystemPrompt, BullPrompt(mc), func(content string) error {
		parsed, perr := parseAgentReply(content, domain.RoleBull)
		if perr != nil {
			return perr
		}
		bull = parsed
		return nil
	})
	if err != nil {
		return domain.TradeThesis{}, fmt.Errorf("bull agent: %w", err)
	}
	bull.ModelUsed, bull.InputTokens, bull.OutputTokens = model, in, out
	totalTokens := in + out

	var bear domain.AgentResponse
	in, out, model, err = o.exchange(ctx, string(domain.RoleBear), bearSystemPrompt, BearPrompt(mc, bull), func(content string) error {
		parsed, perr := parseAgentReply(content, domain.RoleBear)
		if perr != nil {
			return perr
		}
		bear = parsed
		return nil
	})
	if err != nil {
		return domain.TradeThesis{}, fmt.Errorf("bear agent: %w", err)
	}
	bear.ModelUsed, bear.InputTokens, bear.OutputTokens = model, in, out
	totalTokens += in + out

	var verdict thesisReply
	in, out, model, err = o.exchange(ctx, "risk", riskSystemPrompt, RiskPrompt(mc, bull, bear), func(content string) error {
		parsed, perr := parseThesisReply(content)
		if perr != nil {
			return perr
		}
		verdict = parsed
		return nil
	})
	if err != nil {
		return domain.TradeThesis{}, fmt.Errorf("risk agent: %w", err)
	}
	totalTokens += in + out

	return domain.NewTradeThesis(
		domain.Direction(verdict.Direction),
		verdict.Conviction,
		verdict.EntryRationale,
		verdict.RiskFactors,
		verdict.RecommendedAction,
		verdict.BullSummary,
		verdict.BearSummary,
		model,
		totalTokens,
		time.Since(start).Milliseconds(),
		o.disclaimer,
	)
}

// exchange sends one prompt and parses the reply, retrying once with a
// clarification when the reply fails to parse. Token usage across both
// attempts is returned so the thesis totals reflect real spend.
func (o *Orchestrator) exchange(ctx context.Context, role, system, user string, parse func(string) error) (in, out int, model string, err error) {
	res, err := o.chat.Chat(ctx, system, user)
	if err != nil {
		return 0, 0, "", err
	}
	in, out, model = res.InputTokens, res.OutputTokens, res.Model

	perr := parse(res.Content)
	if perr == nil {
		return in, out, model, nil
	}
	agentLogger := config.NewAgentLogger(role)
	agentLogger.Warn().
		Err(perr).
		Msg("Malformed agent reply, retrying with clarification")

	retryPrompt := fmt.Sprintf("%s\n\nYour previous reply could not be used: %v.\nRespond again with ONLY valid JSON in the requested format, with no surrounding text.", user, perr)
	res, err = o.chat.Chat(ctx, system, retryPrompt)
	if err != nil {
		return in, out, model, err
	}
	in += res.InputTokens
	out += res.OutputTokens
	if model == "" {
		model = res.Model
	}

	if perr := parse(res.Content); perr != nil {
		return in, out, model, fmt.Errorf("reply unparseable after clarification: %w", perr)
	}
	return in, out, model, nil
}

func (o *Orchestrator) persistThesis(ctx context.Context, ticker string, thesis domain.TradeThesis) {
	if !o.persist {
		return
	}
	id, err := o.repo.SaveAIThesis(ctx, ticker, thesis)
	if err != nil {
		o.logger.Warn().Err(err).Str("ticker", ticker).Msg("Failed to persist thesis")
		return
	}
	o.logger.Debug().Int64("id", id).Str("ticker", ticker).Msg("Thesis persisted")
}

// agentReply is the JSON shape bull and bear must return.
type agentReply struct {
	Analysis            string             `json:"analysis"`
	KeyPoints           []string           `json:"key_points"`
	Conviction          float64            `json:"conviction"`
	ContractsReferenced []string           `json:"contracts_referenced"`
	GreeksCited         domain.GreeksCited `json:"greeks_cited"`
}

func parseAgentReply(content string, role domain.AgentRole) (domain.AgentResponse, error) {
	var reply agentReply
	if err := llm.ParseJSONResponse(content, &reply); err != nil {
		return domain.AgentResponse{}, err
	}
	if strings.TrimSpace(reply.Analysis) == "" {
		return domain.AgentResponse{}, fmt.Errorf("agent reply: analysis is empty")
	}
	resp, err := domain.NewAgentResponse(role, reply.Analysis, reply.KeyPoints, reply.Conviction)
	if err != nil {
		return domain.AgentResponse{}, err
	}
	resp.ContractsReferenced = reply.ContractsReferenced
	resp.GreeksCited = reply.GreeksCited
	return resp, nil
}

// thesisReply is the JSON shape the risk arbiter must return.
type thesisReply struct {
	Direction         string   `json:"direction"`
	Conviction        float64  `json:"conviction"`
	EntryRationale    string   `json:"entry_rationale"`
	RiskFactors       []string `json:"risk_factors"`
	RecommendedAction string   `json:"recommended_action"`
	BullSummary       string   `json:"bull_summary"`
	BearSummary       string   `json:"bear_summary"`
}

func parseThesisReply(content string) (thesisReply, error) {
	var reply thesisReply
	if err := llm.ParseJSONResponse(content, &reply); err != nil {
		return thesisReply{}, err
	}
	if !domain.Direction(reply.Direction).Valid() {
		return thesisReply{}, fmt.Errorf("thesis reply: invalid direction %q", reply.Direction)
	}
	if reply.Conviction < 0 || reply.Conviction > 1 {
		return thesisReply{}, fmt.Errorf("thesis reply: conviction %.3f outside [0, 1]", reply.Conviction)
	}
	if strings.TrimSpace(reply.EntryRationale) == "" {
		return thesisReply{}, fmt.Errorf("thesis reply: entry_rationale is empty")
	}
	return reply, nil
}
