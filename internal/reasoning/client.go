// Package reasoning wraps the external reasoning service behind a small
// interface. The service is an OpenAI-compatible chat-completion endpoint and
// is treated as an opaque, possibly-slow, possibly-unreliable dependency:
// every call carries a bounded timeout and passes through a rate limiter.
package reasoning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Service is the single call the pipeline makes against the reasoning
// service. Implementations must be stateless across calls so that
// conversation replay stays deterministic given save points.
type Service interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config for the reasoning client.
type Config struct {
	BaseURL           string  `json:"base_url"`
	APIKey            string  `json:"api_key"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

// Client calls the reasoning service through langchaingo.
type Client struct {
	llm         llms.Model
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// New creates a reasoning client for the configured OpenAI-compatible
// endpoint.
func New(config Config) (*Client, error) {
	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoning model: %w", err)
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	log.Debug().
		Str("model", config.Model).
		Str("base_url", config.BaseURL).
		Int("requests_per_minute", rpm).
		Msg("reasoning client created")

	return &Client{
		llm:         llm,
		temperature: config.Temperature,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}, nil
}

// Complete performs one self-contained request/response call in JSON mode.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := c.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("reasoning service call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("reasoning service returned no choices")
	}

	return resp.Choices[0].Content, nil
}
