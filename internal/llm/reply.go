package llm

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/support-chat/support-agent/pkg/logger"
	"github.com/support-chat/support-agent/pkg/metrics"
)

// Outcome says how a Reply was produced.
type Outcome string

const (
	// OutcomeGenerated means the provider returned usable text.
	OutcomeGenerated Outcome = "generated"
	// OutcomeEmpty means the provider answered with nothing.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFallback means the provider failed or none is configured.
	OutcomeFallback Outcome = "fallback"
)

// Texts stored when the provider gives no usable answer.
const (
	EmptyReplyText    = "I'm sorry, I didn't catch that."
	FallbackReplyText = "I am currently experiencing high traffic. I'm sorry, I'm having trouble processing your message."
)

// Reply is the text to store as the ai turn and how it came about.
type Reply struct {
	Text    string
	Outcome Outcome
}

// ReplyGenerator turns a trailing history plus a new user message into a
// reply. It never fails: provider errors collapse into the fallback text.
type ReplyGenerator struct {
	client    Client
	log       *logger.Logger
	system    string
	model     string
	maxTokens int
	timeout   time.Duration
}

// GeneratorOption configures a ReplyGenerator.
type GeneratorOption func(*ReplyGenerator)

// WithModel selects the provider model. Empty keeps the provider default.
func WithModel(model string) GeneratorOption {
	return func(g *ReplyGenerator) { g.model = model }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *ReplyGenerator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithTimeout bounds each provider call. Zero leaves the caller's context alone.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *ReplyGenerator) { g.timeout = d }
}

// WithSystemPrompt replaces the default SystemPrompt.
func WithSystemPrompt(prompt string) GeneratorOption {
	return func(g *ReplyGenerator) { g.system = prompt }
}

// NewReplyGenerator creates a generator on top of client. A nil client is
// allowed and makes every reply the fallback.
func NewReplyGenerator(client Client, log *logger.Logger, opts ...GeneratorOption) *ReplyGenerator {
	if log == nil {
		log = logger.Global()
	}
	g := &ReplyGenerator{
		client:    client,
		log:       log,
		system:    SystemPrompt,
		maxTokens: 150,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the name of the backing client, or "none".
func (g *ReplyGenerator) Provider() string {
	if g.client == nil {
		return "none"
	}
	return g.client.Name()
}

// Generate asks the provider for the next assistant turn. history must be in
// chronological order and must not contain userMessage.
func (g *ReplyGenerator) Generate(ctx context.Context, history []ChatMessage, userMessage string) Reply {
	provider := g.Provider()

	if g.client == nil {
		g.log.Warn("no LLM provider configured, using fallback reply")
		metrics.RecordReply(provider, string(OutcomeFallback))
		return Reply{Text: FallbackReplyText, Outcome: OutcomeFallback}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: RoleUser, Content: userMessage})

	start := time.Now()
	resp, err := g.client.Complete(ctx, &CompletionRequest{
		Model:     g.model,
		System:    g.system,
		Messages:  messages,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		g.log.Error("reply generation failed",
			zap.String("provider", provider),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		metrics.RecordReply(provider, string(OutcomeFallback))
		return Reply{Text: FallbackReplyText, Outcome: OutcomeFallback}
	}

	metrics.RecordCompletion(provider, float64(resp.LatencyMs)/1000, resp.TokensIn, resp.TokensOut)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		g.log.Warn("provider returned an empty reply",
			zap.String("provider", provider),
			zap.String("stop_reason", resp.StopReason),
		)
		metrics.RecordReply(provider, string(OutcomeEmpty))
		return Reply{Text: EmptyReplyText, Outcome: OutcomeEmpty}
	}

	g.log.Debug("reply generated",
		zap.String("provider", provider),
		zap.String("model", resp.Model),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	metrics.RecordReply(provider, string(OutcomeGenerated))
	return Reply{Text: text, Outcome: OutcomeGenerated}
}
