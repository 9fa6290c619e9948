package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Backend selects the model provider.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// ClientConfig configures the model-backed generator.
type ClientConfig struct {
	// Backend is "ollama" (default) or "openai".
	Backend string

	// Model is the model name, e.g. "llama3.1".
	Model string

	// BaseURL overrides the provider endpoint. Empty uses the provider
	// default.
	BaseURL string

	// APIKey authenticates openai-compatible backends.
	APIKey string

	// Temperature for generation. Zero means provider default.
	Temperature float64

	// RequestsPerSecond bounds call rate across parallel workers.
	// Zero disables limiting.
	RequestsPerSecond float64
}

// Client is the langchaingo-backed Generator. Parallel module workers share
// one client; the rate limiter keeps fan-out from flooding the backend.
type Client struct {
	model   llms.Model
	limiter *rate.Limiter
	temp    float64
}

// NewClient builds a generator for the configured backend.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm client: model name required")
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Backend {
	case BackendOpenAI:
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		model, err = openai.New(opts...)
	case BackendOllama, "":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("llm client: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("llm client: init %s backend: %w", cfg.Backend, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{model: model, limiter: limiter, temp: cfg.Temperature}, nil
}

// Generate submits instructions and context to the model and returns the
// cleaned output. Empty post-clean output is ErrEmptyOutput.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generate %s: %w", req.Role, err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.Instructions),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Context),
	}

	var opts []llms.CallOption
	if c.temp > 0 {
		opts = append(opts, llms.WithTemperature(c.temp))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", req.Role, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate %s: %w", req.Role, ErrEmptyOutput)
	}

	cleaned := Clean(resp.Choices[0].Content, req.Shape)
	if strings.TrimSpace(cleaned) == "" {
		return "", fmt.Errorf("generate %s: %w", req.Role, ErrEmptyOutput)
	}
	return cleaned, nil
}
