package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ListModels returns the model ids the server has loaded.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("llm: build tags request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: list models: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read tags response: %w", err)
	}

	var tags tagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, fmt.Errorf("llm: decode tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// ValidateModel reports whether the model is loaded on the server.
// Unreachable server or any other failure reads as "not available";
// this never errors.
func (c *Client) ValidateModel(ctx context.Context, model string) bool {
	names, err := c.ListModels(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Str("model", model).Msg("Model validation failed")
		return false
	}
	for _, name := range names {
		if name == model {
			return true
		}
	}
	return false
}
