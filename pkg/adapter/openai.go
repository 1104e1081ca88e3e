package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/helix-collective/helix/pkg/artifact"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	xaiBaseURL        = "https://api.x.ai/v1"
	perplexityBaseURL = "https://api.perplexity.ai"
)

// OpenAIAdapter implements the Adapter interface for OpenAI and for the
// OpenAI-compatible xAI and Perplexity APIs.
type OpenAIAdapter struct {
	client openai.Client
	name   string
	models []string
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	return newCompatibleAdapter("openai", apiKey, "", []string{
		"gpt-4o-mini",
		"gpt-4.1",
		"o3-mini",
	})
}

// NewXAIAdapter creates an adapter for Grok models.
func NewXAIAdapter(apiKey string) (*OpenAIAdapter, error) {
	return newCompatibleAdapter("xai", apiKey, xaiBaseURL, []string{"grok-3"})
}

// NewPerplexityAdapter creates an adapter for Perplexity's search models.
func NewPerplexityAdapter(apiKey string) (*OpenAIAdapter, error) {
	return newCompatibleAdapter("perplexity", apiKey, perplexityBaseURL, []string{"sonar", "sonar-pro"})
}

func newCompatibleAdapter(name, apiKey, baseURL string, models []string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		name:   name,
		models: models,
	}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return a.name
}

// Models returns the list of supported models.
func (a *OpenAIAdapter) Models() []string {
	return append([]string(nil), a.models...)
}

// Generate sends a prompt to the chat completions endpoint and returns the
// response as an artifact.
func (a *OpenAIAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, statusError(a.name, apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("%s API error: %w", a.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", a.name)
	}

	content := resp.Choices[0].Message.Content
	return &Response{
		Artifact: artifact.New(content, a.name, model, prompt),
		Usage:    newUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
	}, nil
}
