package llm

import (
	"context"
	"fmt"

	"github.com/optionalpha/optionalpha/internal/ports"
)

// Agent adapts the client to the ports.ChatClient seam that the debate
// orchestrator and health oracle program against.
type Agent struct {
	client *Client
}

var _ ports.ChatClient = (*Agent)(nil)

// NewAgent wraps a client for single-exchange use.
func NewAgent(client *Client) *Agent {
	return &Agent{client: client}
}

// Chat sends one system+user exchange using the client defaults.
func (a *Agent) Chat(ctx context.Context, systemPrompt, userPrompt string) (ports.ChatResult, error) {
	result, err := a.client.Chat(ctx, []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, nil)
	if err != nil {
		return ports.ChatResult{}, err
	}
	return ports.ChatResult{
		Content:      result.Content,
		Model:        result.Model,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, nil
}

// ValidateModel confirms the configured model is served.
func (a *Agent) ValidateModel(ctx context.Context) error {
	if a.client.ValidateModel(ctx, a.client.model) {
		return nil
	}
	return fmt.Errorf("llm: model %q not served: %w", a.client.model, ErrModelNotFound)
}

// ListModels returns the models the endpoint serves.
func (a *Agent) ListModels(ctx context.Context) ([]string, error) {
	return a.client.ListModels(ctx)
}
