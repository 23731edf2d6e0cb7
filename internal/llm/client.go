// Package llm is the client for a local OpenAI-compatible model server.
// It retries transport-level failures, strips reasoning-model think
// blocks from replies, and sits behind a circuit breaker so a dead
// server fails fast instead of blocking every debate.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/metrics"
)

const sourceLLM = "llm"

// ErrModelNotFound means the server is up but the requested model is
// not loaded. Never retried; the caller should fall back or pick
// another model.
var ErrModelNotFound = errors.New("model not found")

// retryDelays paces the transport retries. Overridden in tests.
var retryDelays = []time.Duration{500 * time.Millisecond, 1 * time.Second}

// Client talks to the local model server.
type Client struct {
	host        string
	model       string
	temperature float64
	maxTokens   int
	numCtx      int
	timeout     time.Duration
	maxRetries  int
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	logger      zerolog.Logger
}

// NewClient builds a client from config. Host resolution (default,
// LLM_HOST, config file) already happened during config loading.
func NewClient(cfg config.LLMConfig) *Client {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = config.DefaultLLMHost
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	numCtx := cfg.NumCtx
	if numCtx <= 0 {
		numCtx = 8192
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	logger := config.NewLogger("llm")
	settings := gobreaker.Settings{
		Name:        "llm-chat",
		MaxRequests: cfg.Breaker.HalfOpenMaxReqs,
		Timeout:     time.Duration(cfg.Breaker.OpenTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.Breaker.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.Breaker.FailureRatio
		},
		// A reachable server that lacks the model, or a caller that
		// cancelled, says nothing about server health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrModelNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordBreakerState(sourceLLM, to.String())
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}

	return &Client{
		host:        host,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		numCtx:      numCtx,
		timeout:     timeout,
		maxRetries:  maxRetries,
		httpClient:  &http.Client{},
		breaker:     gobreaker.NewCircuitBreaker(settings),
		logger:      logger,
	}
}

// Model returns the default model id requests are sent to.
func (c *Client) Model() string { return c.model }

// Chat sends one completion request through the circuit breaker. An
// open breaker comes back as a data-source-unavailable error without
// touching the server.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage, opts *ChatOptions) (*ChatResult, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return c.chat(ctx, messages, opts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errs.Unavailable("*", sourceLLM, err)
		}
		return nil, err
	}
	return res.(*ChatResult), nil
}

func (c *Client) chat(ctx context.Context, messages []ChatMessage, opts *ChatOptions) (*ChatResult, error) {
	model := c.model
	timeout := c.timeout
	if opts != nil {
		if opts.Model != "" {
			model = opts.Model
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Format:      "json",
		Stream:      false,
		Options:     chatOptions{NumCtx: c.numCtx},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			delay := retryDelays[min(attempt-2, len(retryDelays)-1)]
			c.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying LLM request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.send(ctx, model, body)
		if err == nil {
			result.DurationMS = time.Since(start).Milliseconds()
			metrics.RecordLLMRequest(float64(result.DurationMS), nil)
			metrics.RecordLLMTokens(result.InputTokens, result.OutputTokens)
			return result, nil
		}
		if !retryableTransport(err) {
			metrics.RecordLLMRequest(float64(time.Since(start).Milliseconds()), err)
			return nil, err
		}
		lastErr = err
	}

	metrics.RecordLLMRequest(float64(time.Since(start).Milliseconds()), lastErr)
	return nil, errs.Unavailable("*", sourceLLM,
		fmt.Errorf("llm request failed after %d attempts: %w", c.maxRetries, lastErr))
}

func (c *Client) send(ctx context.Context, model string, body []byte) (*ChatResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("llm: model %q: %w", model, ErrModelNotFound)
	case resp.StatusCode != http.StatusOK:
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, errs.Unavailable("*", sourceLLM,
				fmt.Errorf("status %d: %s", resp.StatusCode, errResp.Error.Message))
		}
		return nil, errs.Unavailable("*", sourceLLM,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errs.Unavailable("*", sourceLLM, fmt.Errorf("decode response: %w", err))
	}
	if len(chatResp.Choices) == 0 {
		return nil, errs.Unavailable("*", sourceLLM, errors.New("no choices in response"))
	}

	respModel := chatResp.Model
	if respModel == "" {
		respModel = model
	}
	return &ChatResult{
		Content:      strings.TrimSpace(StripThinkBlocks(chatResp.Choices[0].Message.Content)),
		Model:        respModel,
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
	}, nil
}

// retryableTransport reports whether err is worth another attempt:
// connection-level failures only. Context expiry, HTTP-level errors,
// and missing models all propagate immediately.
func retryableTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrModelNotFound) || errs.IsUnavailable(err) {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// StripThinkBlocks removes every <think>...</think> block, including
// repeated and nested ones, from a reasoning model's reply. An
// unterminated block truncates the content at its opening tag.
func StripThinkBlocks(content string) string {
	const openTag, closeTag = "<think>", "</think>"
	for {
		start := strings.Index(content, openTag)
		if start == -1 {
			return content
		}
		depth := 1
		i := start + len(openTag)
		for i < len(content) && depth > 0 {
			switch {
			case strings.HasPrefix(content[i:], openTag):
				depth++
				i += len(openTag)
			case strings.HasPrefix(content[i:], closeTag):
				depth--
				i += len(closeTag)
			default:
				i++
			}
		}
		if depth > 0 {
			content = content[:start]
		} else {
			content = content[:start] + content[i:]
		}
	}
}
