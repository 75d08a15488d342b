package service

import (
	"context"
	"fmt"

	"github.com/support-chat/support-agent/internal/llm"
	"github.com/support-chat/support-agent/internal/model"
)

// DefaultHistoryWindow is how many prior messages are sent to the model.
const DefaultHistoryWindow = 10

// MessageReader reads the tail of a conversation.
type MessageReader interface {
	RecentMessages(ctx context.Context, conversationID string, limit int, beforeID string) ([]model.Message, error)
}

// HistoryAssembler builds the trailing context for a reply.
type HistoryAssembler struct {
	reader MessageReader
	window int
}

// NewHistoryAssembler creates an assembler returning at most window messages.
func NewHistoryAssembler(reader MessageReader, window int) *HistoryAssembler {
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &HistoryAssembler{reader: reader, window: window}
}

// Assemble returns the most recent messages of a conversation in chronological
// order, mapped to model roles. With beforeID set, only messages older than it
// are included.
func (h *HistoryAssembler) Assemble(ctx context.Context, conversationID, beforeID string) ([]llm.ChatMessage, error) {
	msgs, err := h.reader.RecentMessages(ctx, conversationID, h.window, beforeID)
	if err != nil {
		return nil, fmt.Errorf("assemble history: %w", err)
	}

	out := make([]llm.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.ChatMessage{
			Role:    roleFor(m.Sender),
			Content: m.Content,
		})
	}
	return out, nil
}

func roleFor(sender model.Sender) string {
	if sender == model.SenderUser {
		return llm.RoleUser
	}
	return llm.RoleAssistant
}
