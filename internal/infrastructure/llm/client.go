// Package llm calls an OpenAI-compatible chat completions endpoint to
// produce clinical narratives.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinctx/pkg/circuitbreaker"
)

// Roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrEmptyCompletion = errors.New("model returned no content")

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns defaults for a local OpenAI-compatible server
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:11434/v1",
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   512,
		Timeout:     120 * time.Second,
	}
}

// BreakerConfig returns breaker settings where request errors other than
// rate limiting do not count against the endpoint.
func BreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig("llm")
	cfg.ConsecutiveFailures = 3
	cfg.Cooldown = time.Minute
	cfg.IsSuccessful = func(err error) bool {
		var ae *APIError
		if errors.As(err, &ae) {
			return ae.StatusCode < 500 && ae.StatusCode != http.StatusTooManyRequests
		}
		return err == nil
	}
	return cfg
}

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: status %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: status %d: %s", e.StatusCode, e.Message)
}

// Completion is the model's answer
type Completion struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *chatError   `json:"error,omitempty"`
}

// Client calls the chat completions endpoint
type Client struct {
	endpoint string
	config   Config
	http     *http.Client
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates a new client. A nil breaker calls the endpoint directly.
func New(cfg Config, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("llm base url is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		config:   cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  breaker,
		logger:   logger,
		tracer:   otel.Tracer("llm-client"),
	}, nil
}

// Model returns the configured model name
func (c *Client) Model() string { return c.config.Model }

// Narrate answers a prompt built from a patient's clinical context
func (c *Client) Narrate(ctx context.Context, p Prompt) (*Completion, error) {
	return c.Complete(ctx, p.Messages())
}

// Complete sends messages and returns the first choice
func (c *Client) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	ctx, span := c.tracer.Start(ctx, "llm_complete",
		trace.WithAttributes(attribute.String("llm.model", c.config.Model)))
	defer span.End()

	call := func(ctx context.Context) (*Completion, error) {
		return c.complete(ctx, messages)
	}

	var (
		out *Completion
		err error
	)
	if c.breaker == nil {
		out, err = call(ctx)
	} else {
		out, err = circuitbreaker.Do(ctx, c.breaker, call)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", out.PromptTokens),
		attribute.Int("llm.completion_tokens", out.CompletionTokens),
	)
	return out, nil
}

func (c *Client) complete(ctx context.Context, messages []Message) (*Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(data, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		if decodeErr == nil && parsed.Error != nil {
			apiErr.Type = parsed.Error.Type
			apiErr.Message = parsed.Error.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrEmptyCompletion
	}

	model := parsed.Model
	if model == "" {
		model = c.config.Model
	}

	c.logger.Debug("llm completion",
		zap.String("model", model),
		zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
		zap.Int("completion_tokens", parsed.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)))

	return &Completion{
		Text:             text,
		Model:            model,
		FinishReason:     parsed.Choices[0].FinishReason,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}
