// Package llm provides the completion client behind keyword extraction,
// sector summaries and mindmap generation. Callers own their prompts; this
// package only knows how to get a completion back from a provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/siftlab/sift/pkg/httpclient"
)

// Client completes a free-form prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrNotConfigured is returned by New when no API key is available. Callers
// treat it as "run without the LLM", not as a failure.
var ErrNotConfigured = errors.New("llm client not configured")

// Config selects and tunes a provider.
type Config struct {
	Provider  string // "openai" or "anthropic"
	Model     string
	BaseURL   string // override for openai-compatible gateways and tests
	MaxTokens int
	Timeout   time.Duration
}

const (
	defaultOpenAIBase    = "https://api.openai.com/v1"
	defaultAnthropicBase = "https://api.anthropic.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultClaudeModel   = "claude-3-5-haiku-latest"
	defaultMaxTokens     = 1024
)

// New builds a Client for the configured provider. An empty API key yields
// ErrNotConfigured so the service can run degraded without one.
func New(cfg Config, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create llm http client: %w", err)
	}

	switch cfg.Provider {
	case "anthropic":
		if cfg.Model == "" {
			cfg.Model = defaultClaudeModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultAnthropicBase
		}
		return &anthropicClient{cfg: cfg, apiKey: apiKey, http: hc}, nil
	case "openai", "":
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBase
		}
		return &openaiClient{cfg: cfg, apiKey: apiKey, http: hc}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// openaiClient speaks the chat-completions API, which also covers
// openai-compatible gateways via BaseURL.
type openaiClient struct {
	cfg    Config
	apiKey string
	http   *httpclient.Client
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openaiClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out chatResponse
	if err := c.http.DoJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai completion: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// anthropicClient speaks the messages API.
type anthropicClient struct {
	cfg    Config
	apiKey string
	http   *httpclient.Client
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	var out messagesResponse
	if err := c.http.DoJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", errors.New("anthropic completion: no text content")
}

// ExtractJSON pulls a JSON object out of a completion that may wrap it in
// prose or a fenced code block. Returns the raw object text, or "" when no
// balanced object is found.
func ExtractJSON(text string) string {
	if i := strings.Index(text, "```json"); i >= 0 {
		rest := text[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate := strings.TrimSpace(rest[:j])
			if candidate != "" {
				return candidate
			}
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}
