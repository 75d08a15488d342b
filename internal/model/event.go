package model

import (
	"time"
)

// EventType represents the type of a message feed event.
type EventType string

const (
	EventTypeMessageCreated EventType = "message.created"
)

// MessageEvent is published to the message feed for every persisted message.
type MessageEvent struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Message        Message   `json:"message"`
	PublishedAt    time.Time `json:"published_at"`
}
