// Package service provides the chat operations behind the HTTP API.
package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/support-chat/support-agent/internal/llm"
	"github.com/support-chat/support-agent/internal/model"
	"github.com/support-chat/support-agent/pkg/logger"
	"github.com/support-chat/support-agent/pkg/metrics"
	"github.com/support-chat/support-agent/pkg/tracing"
)

// DefaultMaxMessageLength caps user messages, in characters.
const DefaultMaxMessageLength = 500

// Store is the persistence the chat service needs.
type Store interface {
	MessageReader
	CreateConversation(ctx context.Context) (*model.Conversation, error)
	ConversationExists(ctx context.Context, id string) (bool, error)
	AppendMessage(ctx context.Context, conversationID string, sender model.Sender, content string) (*model.Message, error)
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// Generator produces the ai turn. It must not fail.
type Generator interface {
	Generate(ctx context.Context, history []llm.ChatMessage, userMessage string) llm.Reply
}

// Publisher receives every persisted message.
type Publisher interface {
	PublishMessage(ctx context.Context, msg *model.Message) error
}

// Options holds the conversation policy.
type Options struct {
	HistoryWindow    int
	MaxMessageLength int
}

// SubmitResult is the outcome of one submitted turn.
type SubmitResult struct {
	Reply     string
	SessionID string
	Outcome   llm.Outcome
}

// ChatService handles message submission and history retrieval.
type ChatService struct {
	store     Store
	history   *HistoryAssembler
	generator Generator
	publisher Publisher
	logger    *logger.Logger
	tracer    trace.Tracer

	maxLen int
	locks  *keyedMutex
}

// NewChatService creates a new chat service. publisher may be nil.
func NewChatService(store Store, generator Generator, publisher Publisher, log *logger.Logger, opts Options) *ChatService {
	if log == nil {
		log = logger.Global()
	}
	maxLen := opts.MaxMessageLength
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &ChatService{
		store:     store,
		history:   NewHistoryAssembler(store, opts.HistoryWindow),
		generator: generator,
		publisher: publisher,
		logger:    log,
		tracer:    tracing.Tracer("support-chat/service"),
		maxLen:    maxLen,
		locks:     newKeyedMutex(),
	}
}

// Submit stores a user message, generates a reply from the trailing history,
// stores the reply and returns it together with the conversation id.
//
// A missing sessionID starts a new conversation, and so does one the store
// does not know. Turns on the same conversation run one at a time.
func (s *ChatService) Submit(ctx context.Context, message string, sessionID *string) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.Submit")
	defer span.End()

	content, err := s.validate(message)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	convID, err := s.resolveConversation(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, "resolve conversation", err)
	}
	span.SetAttributes(attribute.String("conversation.id", convID))

	unlock := s.locks.Lock(convID)
	defer unlock()

	userMsg, err := s.append(ctx, convID, model.SenderUser, content)
	if err != nil {
		return nil, s.fail(span, "store user message", err)
	}

	history, err := s.history.Assemble(ctx, convID, userMsg.ID)
	if err != nil {
		return nil, s.fail(span, "load history", err)
	}
	span.SetAttributes(attribute.Int("history.length", len(history)))

	reply := s.generator.Generate(ctx, history, content)
	span.SetAttributes(attribute.String("reply.outcome", string(reply.Outcome)))

	if _, err := s.append(ctx, convID, model.SenderAI, reply.Text); err != nil {
		return nil, s.fail(span, "store reply", err)
	}

	s.logger.Info("turn completed",
		zap.String("conversation_id", convID),
		zap.Int("history_length", len(history)),
		zap.String("outcome", string(reply.Outcome)),
	)

	return &SubmitResult{
		Reply:     reply.Text,
		SessionID: convID,
		Outcome:   reply.Outcome,
	}, nil
}

// History returns every message of a conversation, oldest first. An unknown
// conversation yields an empty slice.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]model.Message, error) {
	ctx, span := s.tracer.Start(ctx, "ChatService.History",
		trace.WithAttributes(attribute.String("conversation.id", sessionID)))
	defer span.End()

	msgs, err := s.store.Messages(ctx, sessionID)
	if err != nil {
		return nil, s.fail(span, "fetch chat history", err)
	}
	return msgs, nil
}

func (s *ChatService) validate(message string) (string, error) {
	content := strings.TrimSpace(message)
	if content == "" {
		return "", newError(ErrorInvalidInput, "Message is required", nil)
	}
	if utf8.RuneCountInString(content) > s.maxLen {
		return "", newError(ErrorInvalidInput, fmt.Sprintf("Message is too long (max %d chars)", s.maxLen), nil)
	}
	return content, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, sessionID *string) (string, error) {
	if sessionID != nil {
		if id := strings.TrimSpace(*sessionID); id != "" {
			ok, err := s.store.ConversationExists(ctx, id)
			if err != nil {
				return "", err
			}
			if ok {
				return id, nil
			}
			s.logger.Info("unknown session, starting a new conversation", zap.String("session_id", id))
		}
	}

	conv, err := s.store.CreateConversation(ctx)
	if err != nil {
		return "", err
	}
	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	return conv.ID, nil
}

func (s *ChatService) append(ctx context.Context, convID string, sender model.Sender, content string) (*model.Message, error) {
	msg, err := s.store.AppendMessage(ctx, convID, sender, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(sender)).Inc()
	s.publish(ctx, msg)
	return msg, nil
}

// publish hands msg to the feed. Failures never reach the caller.
func (s *ChatService) publish(ctx context.Context, msg *model.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMessage(ctx, msg); err != nil {
		metrics.FeedPublishFailures.Inc()
		s.logger.Warn("failed to publish message",
			zap.String("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func (s *ChatService) fail(span trace.Span, reason string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.logger.Error(reason+" failed", zap.Error(err))
	return newError(ErrorInternal, reason, err)
}
