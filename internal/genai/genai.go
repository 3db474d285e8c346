// Package genai wraps the OpenAI chat completion API for the questionnaire
// service. It provides plain message generation for the responder and
// tool-call generation for the answer classifier, with bounded retries on
// transient failures.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Default generation parameters.
const (
	DefaultModel       = openai.ChatModelGPT4o
	DefaultMaxTokens   = 800
	DefaultTemperature = 0.7
	// DefaultMaxAttempts bounds retries of a single generation call. After the
	// attempts are exhausted the error is surfaced to the caller, which must
	// degrade gracefully without losing conversation state.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the base delay between attempts, doubled each retry.
	DefaultRetryDelay = 500 * time.Millisecond
)

// FunctionCall carries the name and raw JSON arguments of one tool invocation.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToolCallResponse is the result of a generation that may include tool calls.
// Content may be empty when the model chose to call tools instead.
type ToolCallResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ClientInterface defines the generation operations flows depend on, so tests
// can substitute a mock client.
type ClientInterface interface {
	// GeneratePromptWithContext generates a response from a system and user prompt.
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages generates a response from a full message history.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateWithTools generates a response that may invoke the given tools.
	GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey      string
	Model       shared.ChatModel
	MaxTokens   int64
	Temperature float64
	MaxAttempts int
	RetryDelay  time.Duration
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model shared.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithMaxAttempts overrides the retry bound.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) { o.MaxAttempts = n }
}

// WithRetryDelay overrides the base delay between retry attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Opts) { o.RetryDelay = d }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	client      openai.Client
	model       shared.ChatModel
	maxTokens   int64
	temperature float64
	maxAttempts int
	retryDelay  time.Duration
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not set via options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	slog.Debug("genai.NewClient: creating client", "model", cfg.Model, "maxAttempts", cfg.MaxAttempts)
	return &Client{
		client:      openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

// GeneratePromptWithContext generates a response from a system and user prompt.
func (c *Client) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.GenerateWithMessages(ctx, messages)
}

// GenerateWithMessages generates a response from a full message history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	completion, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// GenerateWithTools generates a response that may invoke the given tools.
func (c *Client) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*ToolCallResponse, error) {
	completion, err := c.complete(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	msg := completion.Choices[0].Message
	resp := &ToolCallResponse{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			},
		})
	}
	return resp, nil
}

// complete runs one chat completion with bounded retries. The conversation
// state held by callers is never mutated here, so an exhausted retry loop
// leaves the session intact.
func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	var lastErr error
	delay := c.retryDelay
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		slog.Warn("genai.complete: generation attempt failed", "attempt", attempt, "maxAttempts", c.maxAttempts, "error", err)
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("generation failed after %d attempts: %w", c.maxAttempts, lastErr)
}
