package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/support-chat/support-agent/internal/model"
)

const (
	// StreamName is the name of the chat message stream.
	StreamName = "SUPPORT_CHAT"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	js  jetstream.JetStream
	now func() time.Time
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return newStreamManager(client.JetStream())
}

func newStreamManager(js jetstream.JetStream) *StreamManager {
	return &StreamManager{js: js, now: time.Now}
}

// EnsureStream ensures the chat stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	_, err := m.js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = m.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Support chat messages",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// MessageSubject returns the subject for a message.
func MessageSubject(conversationID string, sender model.Sender) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, conversationID, sender)
}

// PublishMessage publishes a message to JetStream.
func (m *StreamManager) PublishMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(model.MessageEvent{
		Type:           model.EventTypeMessageCreated,
		ConversationID: msg.ConversationID,
		Message:        *msg,
		PublishedAt:    m.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// The message id doubles as the dedup key.
	_, err = m.js.Publish(ctx, MessageSubject(msg.ConversationID, msg.Sender), data, jetstream.WithMsgID(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}
