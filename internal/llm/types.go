package llm

import "time"

// ChatMessage is a single message in a chat exchange.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatOptions overrides per-request settings; nil means client defaults.
type ChatOptions struct {
	Model   string
	Timeout time.Duration
}

// ChatResult is the distilled outcome of one chat call.
type ChatResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	DurationMS   int64  `json:"duration_ms"`
}

// chatRequest is the OpenAI-compatible body the local model server
// accepts. Format and the context-window option ride along so the
// server returns strict JSON without trimming the prompt.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Format      string        `json:"format"`
	Stream      bool          `json:"stream"`
	Options     chatOptions   `json:"options"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatOptions struct {
	NumCtx int `json:"num_ctx"`
}

// chatResponse is the OpenAI-compatible completion envelope.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// errorResponse is the error envelope some servers return on non-200.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// tagsResponse is the model inventory returned by GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
