package model

import (
	"time"
)

// Sender is the stored author of a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one persisted turn of a conversation.
type Message struct {
	// Identity. IDs are UUIDv7, so ordering by ID follows creation time.
	ID             string `json:"id" gorm:"type:varchar(36);primaryKey"`
	ConversationID string `json:"conversation_id" gorm:"type:varchar(36);not null;index"`

	// Content
	Sender  Sender `json:"sender" gorm:"type:varchar(16);not null"`
	Content string `json:"content" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`

	Conversation *Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name used by the store.
func (Message) TableName() string {
	return "messages"
}

// SendMessageRequest is the body of POST /chat/message.
type SendMessageRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"sessionId,omitempty"`
}

// SendMessageResponse is the reply to a submitted message.
type SendMessageResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
