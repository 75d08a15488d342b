package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// placeholderToken satisfies langchaingo for endpoints that take no key.
const placeholderToken = "local"

// LocalClient talks to a self-hosted OpenAI-compatible endpoint such as
// Ollama or vLLM through langchaingo.
type LocalClient struct {
	model llms.Model
	name  string
}

// NewLocalClient creates a client for the endpoint at baseURL serving model.
func NewLocalClient(baseURL, model, token string) (*LocalClient, error) {
	if baseURL == "" {
		return nil, errors.New("local LLM base URL is required")
	}
	if model == "" {
		return nil, errors.New("local LLM model is required")
	}
	if token == "" {
		token = placeholderToken
	}

	m, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create local llm: %w", err)
	}

	return &LocalClient{model: m, name: model}, nil
}

// Name returns the provider name.
func (c *LocalClient) Name() string {
	return string(ProviderLocal)
}

// Complete sends a completion request. The model is fixed at construction
// unless the request names another one.
func (c *LocalClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	content := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.Messages {
		kind := schema.ChatMessageTypeAI
		if msg.Role == RoleUser {
			kind = schema.ChatMessageTypeHuman
		}
		content = append(content, llms.TextParts(kind, msg.Content))
	}

	opts := []llms.CallOption{}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("local llm returned no choices")
	}

	choice := resp.Choices[0]
	model := req.Model
	if model == "" {
		model = c.name
	}

	return &CompletionResponse{
		Content:    choice.Content,
		Model:      model,
		TokensIn:   intInfo(choice.GenerationInfo, "PromptTokens"),
		TokensOut:  intInfo(choice.GenerationInfo, "CompletionTokens"),
		StopReason: choice.StopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

func intInfo(info map[string]any, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
