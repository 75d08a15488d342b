// Package llm provides LLM client interfaces, provider implementations and the
// reply generator used by the chat service.
package llm

import (
	"context"
	"fmt"
)

// Chat roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []ChatMessage
	MaxTokens int
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderLocal     Provider = "local"
)

// Options configures NewClient.
type Options struct {
	Provider Provider
	APIKey   string
	// BaseURL overrides the provider endpoint. Required for ProviderLocal.
	BaseURL string
	// Model is only consulted by providers that bind a model at construction.
	Model string
}

// NewClient creates a new LLM client based on provider.
func NewClient(opts Options) (Client, error) {
	switch opts.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts.APIKey, opts.BaseURL)
	case ProviderOpenAI:
		return NewOpenAIClient(opts.APIKey, opts.BaseURL)
	case ProviderLocal:
		return NewLocalClient(opts.BaseURL, opts.Model, opts.APIKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", opts.Provider)
	}
}
