// Package genai wraps the language-model collaborator behind a single
// synchronous generate call. Any OpenAI-compatible endpoint works; the
// default configuration points at a local Ollama server.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rosebeck482/hapa-chat/internal/metrics"
)

// ErrUnavailable is returned (wrapped) for every failure to obtain text from
// the language model: disabled, timed out, transport error or empty reply.
var ErrUnavailable = errors.New("language model unavailable")

// ErrNoChoicesReturned is returned when the completion contains no choices.
var ErrNoChoicesReturned = fmt.Errorf("%w: no choices returned", ErrUnavailable)

// Default configuration values.
const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "phi4"
	DefaultAPIKey   = "ollama"
	DefaultTimeout  = 30 * time.Second
)

// Config describes the language-model collaborator. It is injected into
// every component that needs it.
type Config struct {
	Endpoint  string
	Model     string
	APIKey    string
	Available bool
	Timeout   time.Duration
}

// DefaultConfig returns the local Ollama configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Model:     DefaultModel,
		APIKey:    DefaultAPIKey,
		Available: true,
		Timeout:   DefaultTimeout,
	}
}

// Generator produces one completion for a system and user prompt.
// Implementations keep no history between calls.
type Generator interface {
	Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
}

// chatService defines the minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements Generator over the OpenAI chat completions API.
type Client struct {
	chat      chatService
	model     string
	available bool
}

// Option configures a Client.
type Option func(*Config)

// WithEndpoint sets the server root, e.g. http://localhost:11434.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithAPIKey sets the bearer token. Ollama ignores it but the client requires one.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithAvailable toggles whether the service is used at all.
func WithAvailable(available bool) Option {
	return func(c *Config) { c.Available = available }
}

// NewClient builds a Client from cfg with opts applied on top.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("language model name not set")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = DefaultAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cli := openai.NewClient(
		option.WithBaseURL(baseURL(cfg.Endpoint)),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	)
	slog.Debug("genai.NewClient: client configured", "endpoint", cfg.Endpoint, "model", cfg.Model, "available", cfg.Available)
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model, available: cfg.Available}, nil
}

// baseURL maps the server root to its OpenAI-compatible prefix.
func baseURL(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if strings.HasSuffix(endpoint, "/v1") {
		return endpoint + "/"
	}
	return endpoint + "/v1/"
}

// Available reports whether the client will attempt calls.
func (c *Client) Available() bool { return c != nil && c.available }

// Generate issues a single chat completion. There is no retry; failures are
// wrapped in ErrUnavailable so callers can substitute a canned message.
func (c *Client) Generate(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("%w: disabled by configuration", ErrUnavailable)
	}
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	metrics.LLMCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("genai.Generate: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	slog.Debug("genai.Generate: completion received", "model", c.model, "chars", len(text))
	return text, nil
}

// Call runs g and records the outcome under purpose. A nil generator counts
// as unavailable.
func Call(ctx context.Context, g Generator, purpose, system, user string, maxTokens int, temperature float64) (string, error) {
	if g == nil {
		metrics.LLMCallsTotal.WithLabelValues(purpose, "unavailable").Inc()
		return "", fmt.Errorf("%w: no generator configured", ErrUnavailable)
	}
	text, err := g.Generate(ctx, system, user, maxTokens, temperature)
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues(purpose, "unavailable").Inc()
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return "", err
	}
	metrics.LLMCallsTotal.WithLabelValues(purpose, "ok").Inc()
	return text, nil
}
