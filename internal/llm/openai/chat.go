// Package openai implements llm.Generator on OpenAI-compatible chat
// completion endpoints. Ollama serves one at /v1.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"paperrag/internal/domain"
	"paperrag/internal/llm"
)

const (
	DefaultBaseURL     = "http://localhost:11434/v1"
	DefaultModel       = "qwen2.5:7b"
	DefaultTemperature = 0.3
	DefaultTimeout     = 120 * time.Second
)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Chat is a llm.Generator bound to one model.
type Chat struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

var _ llm.Generator = (*Chat)(nil)

// NewChat builds a client. The API key is optional for local servers.
func NewChat(cfg Config) *Chat {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		key = "ollama"
	}

	clientCfg := goopenai.DefaultConfig(key)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Chat{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Model returns the model identifier requests are sent to.
func (c *Chat) Model() string { return c.model }

// Complete sends messages and returns the first choice's content verbatim.
func (c *Chat) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if len(messages) == 0 {
		return "", domain.ErrEmptyInput
	}
	req := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]goopenai.ChatCompletionMessage, len(messages)),
		Temperature: c.temperature,
	}
	for i, m := range messages {
		req.Messages[i] = goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion with %s: %w", c.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
