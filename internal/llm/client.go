// Package llm adapts OpenAI chat completions to the pipeline's external
// collaborators: the solution generator, the plausibility scorer and the
// quality checker.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/metrics"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"
)

var (
	// ErrEmptyResponse is returned when the model returns no content.
	ErrEmptyResponse = errors.New("model returned no content")

	// ErrMalformedResponse is returned when the content cannot be decoded.
	ErrMalformedResponse = errors.New("model response malformed")
)

// ChatService defines the interface for making chat completion calls.
// This abstraction enables testing without calling the real OpenAI API.
type ChatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Pricing converts token usage to USD. Zero prices mean cost is unknown.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Cost returns the spend for a call, or nil when pricing is not configured.
func (p Pricing) Cost(promptTokens, completionTokens int64) *float64 {
	if p.PromptPer1K <= 0 && p.CompletionPer1K <= 0 {
		return nil
	}
	c := float64(promptTokens)/1000*p.PromptPer1K + float64(completionTokens)/1000*p.CompletionPer1K
	return &c
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Temperature float64
	Pricing     Pricing
}

// Completion is the text and usage of one call.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
	Cost             *float64
}

// Client is a rate-limited chat completion client shared by the adapters.
type Client struct {
	chat        ChatService
	model       openai.ChatModel
	limiter     *rate.Limiter
	temperature float64
	pricing     Pricing
}

// NewClient creates a Client backed by the OpenAI API.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return NewClientWithService(client.Chat.Completions, cfg)
}

// NewClientWithService creates a Client over an explicit ChatService.
func NewClientWithService(chat ChatService, cfg Config) *Client {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		chat:        chat,
		model:       openai.ChatModel(cfg.Model),
		limiter:     limiter,
		temperature: cfg.Temperature,
		pricing:     cfg.Pricing,
	}
}

// ModelName returns the chat model name.
func (c *Client) ModelName() string {
	return string(c.model)
}

// Complete sends one system and user message pair and returns the reply.
func (c *Client) Complete(ctx context.Context, operation, system, user string) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit wait: %w", operation, err)
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		}),
		Model: openai.F(c.model),
	}
	if c.temperature > 0 {
		params.Temperature = openai.F(c.temperature)
	}

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	metrics.ModelCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s: chat completion failed: %w", operation, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("%s: %w", operation, ErrEmptyResponse)
	}

	out := &Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	out.Cost = c.pricing.Cost(out.PromptTokens, out.CompletionTokens)
	return out, nil
}

// extractJSON returns the first JSON object or array in text, skipping
// markdown code fences and surrounding prose.
func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}
	open := s[start]
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	end := strings.LastIndexByte(s, closing)
	if end < start {
		return "", fmt.Errorf("%w: unterminated JSON", ErrMalformedResponse)
	}
	return s[start : end+1], nil
}
