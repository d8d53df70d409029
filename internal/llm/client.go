// Package llm wraps the reasoning service behind a minimal text-generation
// interface. The engine treats an empty response as "no actionable output",
// never as a fatal condition.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Generation defaults tuned for command extraction: low temperature keeps
// tool invocations deterministic.
const (
	defaultTemperature = 0.4
	defaultMaxTokens   = 2048
	requestTimeout     = 60 * time.Second
)

// Generator produces free text from a prompt plus optional system
// instructions.
type Generator interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// Client talks to any OpenAI-compatible chat-completions endpoint
// (LM Studio, Ollama, OpenAI).
type Client struct {
	client *openai.Client
	model  string
}

// NewClient builds a client against baseURL (e.g. http://localhost:1234).
// The /v1 suffix is appended when missing.
func NewClient(baseURL, apiKey, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		if len(baseURL) < 3 || baseURL[len(baseURL)-3:] != "/v1" {
			baseURL += "/v1"
		}
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: requestTimeout}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Ping verifies the endpoint is reachable by listing its models. Used at
// startup: the reasoning service is mandatory and an unreachable endpoint
// aborts the run.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// Generate returns the first completion choice's content. On any failure the
// returned string is empty and the error describes the cause; callers decide
// whether to continue.
func (c *Client) Generate(ctx context.Context, prompt, system string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
